// Package speech wraps the Volcengine ASR and TTS websocket APIs and adapts
// them to the transcription and synthesis steps of a tutoring turn.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	speechmodel "github.com/zhouzirui/language-partner/backend/internal/model/speech"
)

// Engine is the request/response surface shared by the real service and the stub.
type Engine interface {
	TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error)
	SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
}

// Service 语音服务核心业务逻辑
type Service struct {
	config    *speechmodel.SpeechConfig
	ttsClient *TTSClient
	asrClient *ASRClient
}

// NewService 创建语音服务实例
func NewService(config *speechmodel.SpeechConfig) *Service {
	return &Service{
		config:    config,
		ttsClient: NewTTSClient(config),
		asrClient: NewASRClient(config),
	}
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	return s.asrClient.Transcribe(ctx, req)
}

// SynthesizeSpeech 文字转语音
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	return s.ttsClient.Synthesize(ctx, req)
}

// TranscribeBuffer transcribes an in-memory recording.
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speechmodel.ASRResponse, error) {
	return s.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audio),
		Format:    format,
		Language:  language,
	})
}

// Binding fixes the session, voice and language of an Engine for one tutor
// conversation.
type Binding struct {
	engine    Engine
	sessionID string
	voice     string
	language  string
}

// Bind 将引擎绑定到会话。
func Bind(engine Engine, sessionID, voice, language string) *Binding {
	return &Binding{
		engine:    engine,
		sessionID: sessionID,
		voice:     NormalizeVoiceAlias(voice),
		language:  language,
	}
}

// Transcribe returns the transcript of clip.
func (b *Binding) Transcribe(ctx context.Context, clip speechmodel.Clip) (string, error) {
	if len(clip.Data) == 0 {
		return "", ErrNoAudio
	}
	resp, err := b.engine.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: b.sessionID,
		AudioData: bytes.NewReader(clip.Data),
		Format:    clip.Format,
		Language:  b.language,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// Synthesize renders text in the bound voice.
func (b *Binding) Synthesize(ctx context.Context, text string) (speechmodel.Clip, error) {
	resp, err := b.engine.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID: b.sessionID,
		Text:      text,
		Voice:     b.voice,
		Language:  b.language,
	})
	if err != nil {
		return speechmodel.Clip{}, err
	}
	if len(resp.AudioData) == 0 {
		return speechmodel.Clip{}, fmt.Errorf("synthesis for session %s: %w", b.sessionID, ErrEmptyAudio)
	}
	return resp.Clip(), nil
}
