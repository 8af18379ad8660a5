package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎 openspeech v3 二进制帧：
//
//	byte0: version(4) | header size in 4-byte words(4)
//	byte1: frame type(4) | flags(4)
//	byte2: serialization(4) | compression(4)
//	byte3: reserved
//
// followed by optional sequence, optional event metadata, an error code for
// error frames, the payload size and the payload.
const protocolVersion = 0b0001

// FrameType is the high nibble of byte1.
type FrameType uint8

const (
	FrameFullClientRequest FrameType = 0b0001
	FrameAudioOnlyRequest  FrameType = 0b0010
	FrameFullServerResult  FrameType = 0b1001
	FrameAudioOnlyResult   FrameType = 0b1011
	FrameError             FrameType = 0b1111
)

// FrameFlags is the low nibble of byte1.
type FrameFlags uint8

const (
	FlagNoSequence       FrameFlags = 0b0000
	FlagPositiveSequence FrameFlags = 0b0001
	FlagLastNoSequence   FrameFlags = 0b0010
	FlagNegativeSequence FrameFlags = 0b0011
	FlagWithEvent        FrameFlags = 0b0100

	sequenceMask FrameFlags = 0b0011
)

// Serialization is the high nibble of byte2.
type Serialization uint8

const (
	SerializationNone Serialization = 0b0000
	SerializationJSON Serialization = 0b0001
)

// Compression is the low nibble of byte2.
type Compression uint8

const (
	CompressionNone Compression = 0b0000
	CompressionGzip Compression = 0b0001
)

// Event identifies connection/session lifecycle frames.
type Event int32

const (
	EventNone               Event = 0
	EventStartConnection    Event = 1
	EventFinishConnection   Event = 2
	EventConnectionStarted  Event = 50
	EventConnectionFailed   Event = 51
	EventConnectionFinished Event = 52
	EventSessionStarted     Event = 150
	EventSessionFinished    Event = 152
	EventSessionFailed      Event = 153
)

func (e Event) hasSessionID() bool {
	switch e {
	case EventStartConnection, EventFinishConnection,
		EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return false
	}
	return true
}

func (e Event) hasConnectID() bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

// Frame is one decoded websocket binary message.
type Frame struct {
	Type          FrameType
	Flags         FrameFlags
	Serialization Serialization
	Compression   Compression
	Sequence      int32
	Event         Event
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

var errShortFrame = errors.New("speech frame truncated")

func (f *Frame) hasSequence() bool {
	s := f.Flags & sequenceMask
	return s == FlagPositiveSequence || s == FlagNegativeSequence
}

func (f *Frame) hasEvent() bool {
	return f.Flags&FlagWithEvent == FlagWithEvent
}

// Last reports whether the frame closes the stream.
func (f *Frame) Last() bool {
	s := f.Flags & sequenceMask
	return s == FlagLastNoSequence || s == FlagNegativeSequence
}

// Marshal encodes the frame.
func (f *Frame) Marshal() []byte {
	buf := make([]byte, 0, 16+len(f.Payload)+len(f.SessionID)+len(f.ConnectID))
	buf = append(buf,
		protocolVersion<<4|1,
		uint8(f.Type)<<4|uint8(f.Flags),
		uint8(f.Serialization)<<4|uint8(f.Compression),
		0,
	)

	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}
	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Event))
		if f.Event.hasSessionID() {
			buf = appendSized(buf, f.SessionID)
		}
		if f.Event.hasConnectID() {
			buf = appendSized(buf, f.ConnectID)
		}
	}
	if f.Type == FrameError {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...)
}

func appendSized(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// ParseFrame decodes a websocket binary message.
func ParseFrame(data []byte) (*Frame, error) {
	r := frameReader{data: data}

	head, err := r.next(4)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version := head[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	f := &Frame{
		Type:          FrameType(head[1] >> 4),
		Flags:         FrameFlags(head[1] & 0x0F),
		Serialization: Serialization(head[2] >> 4),
		Compression:   Compression(head[2] & 0x0F),
	}

	// header size is counted in 4-byte words, extension bytes are skipped
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.next(extra); err != nil {
			return nil, fmt.Errorf("read header extension: %w", err)
		}
	}

	if f.hasSequence() {
		seq, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
		f.Sequence = int32(seq)
	}

	if f.hasEvent() {
		ev, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		f.Event = Event(int32(ev))
		if f.Event.hasSessionID() {
			if f.SessionID, err = r.sized(); err != nil {
				return nil, fmt.Errorf("read session id: %w", err)
			}
		}
		if f.Event.hasConnectID() {
			if f.ConnectID, err = r.sized(); err != nil {
				return nil, fmt.Errorf("read connect id: %w", err)
			}
		}
	}

	if f.Type == FrameError {
		if f.ErrorCode, err = r.uint32(); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	size, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	payload, err := r.next(int(size))
	if err != nil {
		return nil, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
	}
	if size > 0 {
		f.Payload = append([]byte(nil), payload...)
	}
	return f, nil
}

// Body returns the payload with the frame's compression removed.
func (f *Frame) Body() ([]byte, error) {
	switch f.Compression {
	case CompressionNone:
		return f.Payload, nil
	case CompressionGzip:
		return gunzip(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.Compression)
	}
}

// newClientRequest builds the JSON request that opens an ASR or TTS stream.
func newClientRequest(body []byte, compression Compression) (*Frame, error) {
	payload, err := compress(body, compression)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:          FrameFullClientRequest,
		Flags:         FlagNoSequence,
		Serialization: SerializationJSON,
		Compression:   compression,
		Payload:       payload,
	}, nil
}

// newAudioChunk builds one audio frame. The last chunk carries a negated
// sequence number, or no sequence when seq is zero.
func newAudioChunk(chunk []byte, seq int32, last bool, compression Compression) (*Frame, error) {
	payload, err := compress(chunk, compression)
	if err != nil {
		return nil, err
	}

	flags := FlagNoSequence
	switch {
	case last && seq != 0:
		flags, seq = FlagNegativeSequence, -seq
	case last:
		flags = FlagLastNoSequence
	case seq > 0:
		flags = FlagPositiveSequence
	}

	return &Frame{
		Type:          FrameAudioOnlyRequest,
		Flags:         flags,
		Serialization: SerializationNone,
		Compression:   compression,
		Sequence:      seq,
		Payload:       payload,
	}, nil
}

func compress(data []byte, method Compression) ([]byte, error) {
	switch method {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}

type frameReader struct {
	data []byte
	off  int
}

func (r *frameReader) next(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, errShortFrame
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *frameReader) uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *frameReader) sized() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
