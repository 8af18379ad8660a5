package speech

import (
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/language-partner/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/language-partner/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/language-partner/backend/internal/service/speech"
	"github.com/zhouzirui/language-partner/backend/pkg/utils"
)

// Handler 语音服务的HTTP处理器
type Handler struct {
	engine          speechsvc.Engine
	sessions        *chatservice.Service
	defaultLanguage string
}

// New 创建语音处理器。sessions 可为空，此时不会按会话解析音色。
func New(engine speechsvc.Engine, sessions *chatservice.Service, defaultLanguage string) *Handler {
	if defaultLanguage == "" {
		defaultLanguage = "ja-JP"
	}
	return &Handler{
		engine:          engine,
		sessions:        sessions,
		defaultLanguage: defaultLanguage,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		// ASR 端点
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/transcribe/{sessionID}", h.handleTranscribe)

		// TTS 端点
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Post("/synthesize/{sessionID}", h.handleSynthesize)

		// 健康检查
		speechRouter.Get("/health", h.handleHealth)
	})
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	sessionID := h.sessionID(r)
	_, language := h.sessionVoice(sessionID)
	if lang := strings.TrimSpace(r.FormValue("language")); lang != "" {
		language = lang
	}

	resp, err := h.engine.TranscribeAudio(r.Context(), &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    inferAudioFormat(header.Filename),
		Language:  language,
	})
	if err != nil {
		log.Printf("[speech] ASR error: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleSynthesize 处理文本转语音请求
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if id := chi.URLParam(r, "sessionID"); id != "" {
		req.SessionID = id
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	voice, language := h.sessionVoice(req.SessionID)
	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = voice
	}
	if req.Language == "" {
		req.Language = language
	}

	resp, err := h.engine.SynthesizeSpeech(r.Context(), &req)
	if err != nil {
		log.Printf("[speech] TTS error: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	if len(resp.AudioData) == 0 {
		utils.RespondJSON(w, http.StatusOK, resp)
		return
	}

	clip := resp.Clip()
	w.Header().Set("Content-Type", clip.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+clip.Format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(clip.Data); err != nil {
		log.Printf("[speech] failed to write audio response: %v", err)
	}
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
	})
}

func (h *Handler) sessionID(r *http.Request) string {
	if id := chi.URLParam(r, "sessionID"); id != "" {
		return id
	}
	if id := r.FormValue("sessionId"); id != "" {
		return id
	}
	return "default"
}

// sessionVoice 根据会话绑定的导师解析音色与语言。
func (h *Handler) sessionVoice(sessionID string) (voice, language string) {
	language = h.defaultLanguage
	if h.sessions == nil {
		return "", language
	}
	conv, err := h.sessions.GetConversation(sessionID)
	if err != nil {
		return "", language
	}
	if conv.Profile.Language != "" {
		language = conv.Profile.Language
	}
	return speechsvc.NormalizeVoiceAlias(conv.Profile.VoiceID), language
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".ogg", ".pcm":
		return strings.TrimPrefix(ext, ".")
	default:
		return "wav"
	}
}
