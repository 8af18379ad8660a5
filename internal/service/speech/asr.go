package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/language-partner/backend/internal/model/speech"
)

const (
	defaultASREndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	// 16kHz * 16bit * mono * 200ms
	asrChunkBytes    = 6400
	asrChunkInterval = 200 * time.Millisecond
	// the full client request takes sequence 1
	asrFirstAudioSeq = int32(2)
)

// ErrNoAudio is returned when the request carries no audio bytes.
var ErrNoAudio = errors.New("no audio data to send")

// ASRClient transcribes audio through the Volcengine bigmodel websocket API.
type ASRClient struct {
	cfg      *speechmodel.SpeechConfig
	dialer   *websocket.Dialer
	endpoint string
	interval time.Duration
}

// NewASRClient 创建 ASR 客户端。
func NewASRClient(cfg *speechmodel.SpeechConfig) *ASRClient {
	return &ASRClient{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		endpoint: defaultASREndpoint,
		interval: asrChunkInterval,
	}
}

type asrPayload struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrResult struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// Transcribe streams the audio in 200ms chunks while concurrently reading
// results, so a server-side error stops the upload early.
func (c *ASRClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	creds, err := loadCredentials(c.cfg)
	if err != nil {
		return nil, err
	}
	if req.AudioData == nil {
		return nil, ErrNoAudio
	}
	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrNoAudio
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resourceID := "volc.bigasr.sauc.duration"
	if c.cfg.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, creds.header(resourceID, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR websocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[ASR] connected with logid: %s", logid)
		}
	}

	body, err := json.Marshal(c.buildPayload(req, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	frame, err := newClientRequest(body, CompressionGzip)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Marshal()); err != nil {
		return nil, fmt.Errorf("failed to send ASR request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	type outcome struct {
		resp *speechmodel.ASRResponse
		err  error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		r, err := c.receive(ctx, conn, sessionID)
		resultCh <- outcome{resp: r, err: err}
	}()

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- c.send(ctx, conn, audio)
	}()

	for {
		select {
		case err := <-sendErrCh:
			if err != nil {
				return nil, fmt.Errorf("failed to send audio data: %w", err)
			}
			sendErrCh = nil
		case out := <-resultCh:
			return out.resp, out.err
		}
	}
}

func (c *ASRClient) buildPayload(req *speechmodel.ASRRequest, uid string) *asrPayload {
	p := &asrPayload{}
	p.User.UID = uid

	p.Audio.Format = req.Format
	if p.Audio.Format == "" {
		p.Audio.Format = "wav"
	}
	p.Audio.Language = req.Language
	if p.Audio.Language == "" {
		p.Audio.Language = c.cfg.ASRLanguage
	}
	p.Audio.Codec = "raw"
	p.Audio.Rate = 16000
	p.Audio.Bits = 16
	p.Audio.Channel = 1

	p.Request.ModelName = "bigmodel"
	if c.cfg.ASRModel != "" {
		p.Request.ModelName = c.cfg.ASRModel
	}
	p.Request.EnableITN = true
	p.Request.EnablePunc = true
	p.Request.ShowUtterances = true
	p.Request.ResultType = "full"
	p.Request.EndWindowSize = 800
	return p
}

func (c *ASRClient) send(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	seq := asrFirstAudioSeq
	for start := 0; start < len(audio); start += asrChunkBytes {
		end := min(start+asrChunkBytes, len(audio))
		last := end == len(audio)

		frame, err := newAudioChunk(audio[start:end], seq, last, CompressionGzip)
		if err != nil {
			return fmt.Errorf("failed to build audio chunk: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame.Marshal()); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		if last {
			return nil
		}
		seq++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
	return nil
}

func (c *ASRClient) receive(ctx context.Context, conn *websocket.Conn, sessionID string) (*speechmodel.ASRResponse, error) {
	var (
		text     string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read ASR response: %w", err)
		}

		frame, err := ParseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR frame: %w", err)
		}

		switch frame.Type {
		case FrameError:
			body, _ := frame.Body()
			return nil, fmt.Errorf("ASR error %d: %s", frame.ErrorCode, string(body))

		case FrameFullServerResult:
			body, err := frame.Body()
			if err != nil {
				return nil, fmt.Errorf("failed to decompress ASR frame: %w", err)
			}
			var result asrResult
			if err := json.Unmarshal(body, &result); err != nil {
				log.Printf("[ASR] ignoring undecodable result: %v", err)
				continue
			}
			if result.Code != 0 && result.Code != 20000000 {
				return nil, fmt.Errorf("ASR API error %d: %s", result.Code, result.Message)
			}

			if candidate := resultText(result); candidate != "" {
				text = candidate
			}
			if result.AudioInfo.Duration > 0 {
				duration = result.AudioInfo.Duration
			}

			if frame.Last() || result.Sequence < 0 {
				if text == "" {
					log.Printf("[ASR] empty transcript for session %s", sessionID)
				}
				return &speechmodel.ASRResponse{
					SessionID:  sessionID,
					Text:       text,
					Confidence: confidence(text),
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now(),
				}, nil
			}
		}
	}
}

func resultText(r asrResult) string {
	if r.Result.Text != "" {
		return r.Result.Text
	}
	parts := make([]string, 0, len(r.Result.Utterances))
	for _, u := range r.Result.Utterances {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}

func confidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}
