package speech

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	original := &Frame{
		Type:          FrameFullClientRequest,
		Flags:         FlagNoSequence,
		Serialization: SerializationJSON,
		Compression:   CompressionNone,
		Payload:       []byte(`{"text":"こんにちは"}`),
	}

	decoded, err := ParseFrame(original.Marshal())
	if err != nil {
		t.Fatalf("ParseFrame err: %v", err)
	}
	if decoded.Type != original.Type || decoded.Serialization != SerializationJSON {
		t.Fatalf("header mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Fatalf("payload mismatch: %q", decoded.Payload)
	}
}

func TestFrameWithEventMetadata(t *testing.T) {
	cases := []struct {
		name      string
		event     Event
		sessionID string
		connectID string
	}{
		{name: "session event", event: EventSessionFinished, sessionID: "sess-1"},
		{name: "connection event", event: EventConnectionStarted, connectID: "conn-9"},
		{name: "start connection", event: EventStartConnection},
	}

	for _, tc := range cases {
		frame := &Frame{
			Type:      FrameFullServerResult,
			Flags:     FlagWithEvent,
			Event:     tc.event,
			SessionID: tc.sessionID,
			ConnectID: tc.connectID,
			Payload:   []byte("{}"),
		}
		got, err := ParseFrame(frame.Marshal())
		if err != nil {
			t.Fatalf("%s: ParseFrame err: %v", tc.name, err)
		}
		if got.Event != tc.event || got.SessionID != tc.sessionID || got.ConnectID != tc.connectID {
			t.Fatalf("%s: metadata mismatch: %+v", tc.name, got)
		}
	}
}

func TestAudioChunkSequenceFlags(t *testing.T) {
	cases := []struct {
		seq      int32
		last     bool
		flags    FrameFlags
		wantSeq  int32
		wantLast bool
	}{
		{seq: 2, last: false, flags: FlagPositiveSequence, wantSeq: 2},
		{seq: 5, last: true, flags: FlagNegativeSequence, wantSeq: -5, wantLast: true},
		{seq: 0, last: true, flags: FlagLastNoSequence, wantSeq: 0, wantLast: true},
		{seq: 0, last: false, flags: FlagNoSequence, wantSeq: 0},
	}

	for _, tc := range cases {
		frame, err := newAudioChunk([]byte{1, 2, 3}, tc.seq, tc.last, CompressionGzip)
		if err != nil {
			t.Fatalf("newAudioChunk err: %v", err)
		}
		if frame.Flags != tc.flags {
			t.Fatalf("seq=%d last=%v: flags %04b, want %04b", tc.seq, tc.last, frame.Flags, tc.flags)
		}

		decoded, err := ParseFrame(frame.Marshal())
		if err != nil {
			t.Fatalf("ParseFrame err: %v", err)
		}
		if decoded.Sequence != tc.wantSeq || decoded.Last() != tc.wantLast {
			t.Fatalf("seq=%d last=%v: decoded sequence %d last %v", tc.seq, tc.last, decoded.Sequence, decoded.Last())
		}
		body, err := decoded.Body()
		if err != nil || !bytes.Equal(body, []byte{1, 2, 3}) {
			t.Fatalf("unexpected body %v err %v", body, err)
		}
	}
}

func TestErrorFrameCarriesCode(t *testing.T) {
	frame := &Frame{Type: FrameError, Payload: []byte("quota exceeded"), ErrorCode: 45000001}
	got, err := ParseFrame(frame.Marshal())
	if err != nil {
		t.Fatalf("ParseFrame err: %v", err)
	}
	if got.ErrorCode != 45000001 || string(got.Payload) != "quota exceeded" {
		t.Fatalf("unexpected error frame %+v", got)
	}
}

func TestGzipClientRequest(t *testing.T) {
	body := bytes.Repeat([]byte("compress me "), 20)
	frame, err := newClientRequest(body, CompressionGzip)
	if err != nil {
		t.Fatalf("newClientRequest err: %v", err)
	}
	if bytes.Equal(frame.Payload, body) {
		t.Fatal("payload should be compressed")
	}
	decoded, err := ParseFrame(frame.Marshal())
	if err != nil {
		t.Fatalf("ParseFrame err: %v", err)
	}
	plain, err := decoded.Body()
	if err != nil || !bytes.Equal(plain, body) {
		t.Fatalf("decompressed body mismatch, err %v", err)
	}
}

func TestParseFrameRejectsBadInput(t *testing.T) {
	if _, err := ParseFrame([]byte{0x11, 0x90}); !errors.Is(err, errShortFrame) {
		t.Fatalf("expected short frame error, got %v", err)
	}
	if _, err := ParseFrame([]byte{0x21, 0x90, 0x00, 0x00, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected version error")
	}

	frame := (&Frame{Type: FrameFullServerResult, Payload: []byte("abcdef")}).Marshal()
	if _, err := ParseFrame(frame[:len(frame)-2]); !errors.Is(err, errShortFrame) {
		t.Fatalf("expected truncated payload error, got %v", err)
	}
}
