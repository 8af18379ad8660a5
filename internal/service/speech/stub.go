package speech

import (
	"context"
	"encoding/binary"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	speechmodel "github.com/zhouzirui/language-partner/backend/internal/model/speech"
)

// StubEngine fakes ASR/TTS for local development without Volcengine keys.
type StubEngine struct {
	// Transcript is returned for every recording.
	Transcript string
	// Delay simulates service latency.
	Delay time.Duration
}

// NewStubEngine 返回本地开发用的占位语音引擎。
func NewStubEngine() *StubEngine {
	return &StubEngine{Transcript: "こんにちは", Delay: 50 * time.Millisecond}
}

func (s *StubEngine) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TranscribeAudio returns the configured transcript.
func (s *StubEngine) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if req.AudioData == nil {
		return nil, ErrNoAudio
	}
	n, err := io.Copy(io.Discard, req.AudioData)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoAudio
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return &speechmodel.ASRResponse{
		SessionID:  req.SessionID,
		Text:       s.Transcript,
		Confidence: confidence(s.Transcript),
		RequestID:  uuid.NewString(),
		CreatedAt:  time.Now(),
	}, nil
}

// SynthesizeSpeech returns a short silent WAV whose length grows with the text.
func (s *StubEngine) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyAudio
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	ms := int64(200 + 80*len([]rune(req.Text)))
	return &speechmodel.TTSResponse{
		SessionID: req.SessionID,
		AudioData: silentWAV(ms),
		Duration:  ms,
		Format:    "wav",
		RequestID: uuid.NewString(),
		CreatedAt: time.Now(),
	}, nil
}

// silentWAV builds a 16kHz mono 16-bit PCM WAV of the given length.
func silentWAV(ms int64) []byte {
	const (
		sampleRate = 16000
		bits       = 16
		channels   = 1
	)
	dataLen := uint32(ms * sampleRate / 1000 * bits / 8 * channels)

	buf := make([]byte, 44+int(dataLen))
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], 36+dataLen)
	copy(buf[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], channels)
	binary.LittleEndian.PutUint32(buf[24:], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:], sampleRate*channels*bits/8)
	binary.LittleEndian.PutUint16(buf[32:], channels*bits/8)
	binary.LittleEndian.PutUint16(buf[34:], bits)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], dataLen)
	return buf
}
