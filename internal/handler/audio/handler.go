package audio

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/language-partner/backend/internal/model/speech"
	"github.com/zhouzirui/language-partner/backend/pkg/utils"
)

// ClipSource resolves audio references.
type ClipSource interface {
	Get(ref string) (speech.Clip, bool)
}

// Handler 音频片段下载处理器
type Handler struct {
	clips ClipSource
}

// New 创建音频处理器
func New(clips ClipSource) *Handler {
	return &Handler{clips: clips}
}

// RegisterRoutes 注册音频路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audio/{ref}", h.handleGet)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	clip, ok := h.clips.Get(ref)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "audio not found")
		return
	}

	w.Header().Set("Content-Type", clip.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(clip.Data); err != nil {
		log.Printf("[audio] failed to write clip %s: %v", ref, err)
	}
}
