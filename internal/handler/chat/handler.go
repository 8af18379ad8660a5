package chat

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/language-partner/backend/internal/model/speech"
	"github.com/zhouzirui/language-partner/backend/internal/pipeline"
	chatService "github.com/zhouzirui/language-partner/backend/internal/service/chat"
	"github.com/zhouzirui/language-partner/backend/pkg/utils"
)

const maxAudioUpload = 16 << 20

// Handler 会话与消息的HTTP处理器
type Handler struct {
	sessions *chatService.Service
}

// New 创建聊天处理器
func New(sessions *chatService.Service) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Delete("/", h.handleCloseSession)
		r.Get("/messages", h.handleListMessages)
		r.Post("/messages", h.handleSubmitText)
		r.Post("/audio", h.handleSubmitAudio)
		r.Post("/messages/{messageID}/translation", h.handleFullTranslation)
		r.Get("/messages/{messageID}/segments", h.handleSegments)
		r.Get("/messages/{messageID}/keywords/{keyword}", h.handleKeyword)
		r.Get("/events", h.handleEvents)
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TutorID string `json:"tutorId"`
	}
	if err := utils.DecodeJSON(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.sessions.CreateSession(r.Context(), strings.TrimSpace(payload.TutorID))
	if err != nil {
		if errors.Is(err, chatService.ErrTutorNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "tutor not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"session": conv.Session,
		"tutor":   conv.Profile,
	})
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.CloseSession(chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	messages, version := conv.Store.VersionedSnapshot()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"version":  version,
		"messages": messages,
	})
}

func (h *Handler) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text     string `json:"text"`
		AudioRef string `json:"audioRef"`
	}
	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn := conv.Pipeline.SubmitUtterance(payload.Text, payload.AudioRef)
	if turn.UserEntryID() == "" {
		respondTurnError(w, turn.Err())
		return
	}
	h.respondTurn(w, r, turn)
}

func (h *Handler) handleSubmitAudio(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
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

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}
	if len(data) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	format := strings.TrimSpace(r.FormValue("format"))
	if format == "" {
		format = inferAudioFormat(header.Filename)
	}

	turn := conv.Pipeline.SubmitAudio(speech.Clip{Data: data, Format: format})
	if err := turn.Err(); errors.Is(err, pipeline.ErrNoTranscriber) || errors.Is(err, pipeline.ErrClosed) {
		respondTurnError(w, err)
		return
	}
	h.respondTurn(w, r, turn)
}

// respondTurn answers 202 immediately, or after the reply when ?wait=true.
func (h *Handler) respondTurn(w http.ResponseWriter, r *http.Request, turn *pipeline.Turn) {
	if r.URL.Query().Get("wait") != "true" {
		utils.RespondJSON(w, http.StatusAccepted, map[string]string{
			"status":      "processing",
			"userEntryId": turn.UserEntryID(),
		})
		return
	}

	select {
	case <-turn.Replied():
	case <-r.Context().Done():
		return
	}
	if err := turn.Err(); err != nil {
		respondTurnError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":      "replied",
		"userEntryId": turn.UserEntryID(),
		"botEntryId":  turn.BotEntryID(),
	})
}

func (h *Handler) handleFullTranslation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")

	translated, err := conv.Pipeline.RequestFullTranslation(r.Context(), messageID)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrEntryNotFound):
			utils.RespondError(w, http.StatusNotFound, "message not found")
		case r.Context().Err() != nil:
		default:
			utils.RespondError(w, http.StatusBadGateway, "translation failed")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"messageId":   messageID,
		"translation": translated,
	})
}

func (h *Handler) handleSegments(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")

	segments, err := conv.Pipeline.Segments(messageID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "message not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messageId": messageID,
		"segments":  segments,
	})
}

func (h *Handler) handleKeyword(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	keyword := chi.URLParam(r, "keyword")
	if unescaped, err := url.PathUnescape(keyword); err == nil {
		keyword = unescaped
	}

	translated, found := conv.Pipeline.KeywordTranslation(chi.URLParam(r, "messageID"), keyword)
	if !found {
		utils.RespondError(w, http.StatusNotFound, "keyword not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"keyword":     keyword,
		"translation": translated,
	})
}

func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) (*chatService.Conversation, bool) {
	conv, err := h.sessions.GetConversation(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return conv, true
}

func respondTurnError(w http.ResponseWriter, err error) {
	var transport *pipeline.TransportError
	switch {
	case errors.Is(err, pipeline.ErrEmptyUtterance), errors.Is(err, pipeline.ErrEmptyTranscript):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNoTranscriber):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, pipeline.ErrClosed):
		utils.RespondError(w, http.StatusGone, err.Error())
	case errors.As(err, &transport):
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, "turn failed")
	}
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".ogg":
		return strings.TrimPrefix(ext, ".")
	default:
		return "wav"
	}
}
