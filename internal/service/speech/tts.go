package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/language-partner/backend/internal/model/speech"
)

const defaultTTSEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// ErrEmptyAudio is returned when the stream finished without audio bytes.
var ErrEmptyAudio = errors.New("tts returned no audio")

// TTSClient synthesizes speech over the Volcengine unidirectional stream API.
type TTSClient struct {
	cfg      *speechmodel.SpeechConfig
	dialer   *websocket.Dialer
	endpoint string
}

// NewTTSClient 创建 TTS 客户端；BaseURL 以 ws 开头时覆盖默认端点。
func NewTTSClient(cfg *speechmodel.SpeechConfig) *TTSClient {
	return &TTSClient{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		endpoint: endpointOverride(cfg, defaultTTSEndpoint),
	}
}

type ttsPayload struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
}

type ttsResult struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// Synthesize walks the speaker and resource candidates until one is accepted.
// Only resource/speaker mismatches move on to the next candidate.
func (c *TTSClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	creds, err := loadCredentials(c.cfg)
	if err != nil {
		return nil, err
	}

	format := strings.TrimSpace(req.Format)
	if format == "" || format == "wav" {
		format = "mp3"
	}

	speakers := speakerCandidates(req.Voice, c.cfg.TTSVoice)
	if len(speakers) == 0 {
		return nil, fmt.Errorf("TTS speaker is not configured")
	}

	var lastMismatch error
	for _, speaker := range speakers {
		for _, resourceID := range resourceCandidates(speaker) {
			resp, err := c.stream(ctx, creds, req, speaker, resourceID, format)
			if err == nil {
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			log.Printf("[TTS] speaker %s rejected by resource %s, trying next candidate", speaker, resourceID)
			lastMismatch = err
		}
	}
	return nil, lastMismatch
}

func (c *TTSClient) stream(ctx context.Context, creds credentials, req *speechmodel.TTSRequest, speaker, resourceID, format string) (*speechmodel.TTSResponse, error) {
	connectID := uuid.NewString()
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, creds.header(resourceID, connectID))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS websocket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[TTS] connected with logid: %s", logid)
		}
	}

	payload, uid := c.buildPayload(req, speaker, format)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	frame, err := newClientRequest(body, CompressionNone)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Marshal()); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    = connectID
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		frame, err := ParseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS frame: %w", err)
		}
		body, err := frame.Body()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress TTS frame: %w", err)
		}

		switch frame.Type {
		case FrameError:
			return nil, fmt.Errorf("TTS error %d: %s", frame.ErrorCode, string(body))

		case FrameAudioOnlyResult:
			audio.Write(body)

		case FrameFullServerResult:
			var result ttsResult
			if len(body) > 0 {
				if err := json.Unmarshal(body, &result); err != nil {
					log.Printf("[TTS] ignoring undecodable result: %v", err)
				} else {
					if result.Code != 0 && result.Code != 3000 {
						return nil, fmt.Errorf("TTS API error %d: %s", result.Code, result.Message)
					}
					if result.ReqID != "" {
						reqID = result.ReqID
					}
					if ms, err := strconv.ParseInt(result.Addition.Duration, 10, 64); err == nil {
						duration = ms
					}
					if result.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(result.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := (frame.hasEvent() && frame.Event == EventSessionFinished) || frame.Last() || result.Sequence < 0
			if !finished {
				continue
			}
			if audio.Len() == 0 {
				return nil, ErrEmptyAudio
			}

			sessionID := strings.TrimSpace(req.SessionID)
			if sessionID == "" {
				sessionID = uid
			}
			return &speechmodel.TTSResponse{
				SessionID: sessionID,
				AudioData: audio.Bytes(),
				Duration:  duration,
				Format:    format,
				RequestID: reqID,
				CreatedAt: time.Now(),
			}, nil

		default:
			log.Printf("[TTS] unexpected frame type: %d", frame.Type)
		}
	}
}

func (c *TTSClient) buildPayload(req *speechmodel.TTSRequest, speaker, format string) (*ttsPayload, string) {
	p := &ttsPayload{}

	uid := strings.TrimSpace(req.SessionID)
	if uid == "" {
		uid = uuid.NewString()
	}
	p.User.UID = uid

	p.ReqParams.Speaker = speaker
	p.ReqParams.Text = req.Text
	p.ReqParams.AudioParams = ttsAudioParams{
		Format:          format,
		SampleRate:      24000,
		EnableTimestamp: true,
		SpeedRatio:      ratio(req.Speed, c.cfg.TTSSpeed),
		VolumeRatio:     ratio(req.Volume, c.cfg.TTSVolume),
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = strings.TrimSpace(c.cfg.TTSLanguage)
	}
	p.ReqParams.Language = language
	p.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return p, uid
}

// ratio picks the request value, then the configured one; 1.0 is omitted.
func ratio(requested, configured float32) float32 {
	v := requested
	if v <= 0 {
		v = configured
	}
	if v <= 0 || v == 1.0 {
		return 0
	}
	return v
}

func endpointOverride(cfg *speechmodel.SpeechConfig, fallback string) string {
	if cfg == nil {
		return fallback
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if strings.HasPrefix(base, "ws://") || strings.HasPrefix(base, "wss://") {
		return base
	}
	return fallback
}
