package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/language-partner/backend/internal/handler/audio"
	"github.com/zhouzirui/language-partner/backend/internal/handler/chat"
	"github.com/zhouzirui/language-partner/backend/internal/handler/speech"
	"github.com/zhouzirui/language-partner/backend/internal/handler/tutor"
	middlewarePkg "github.com/zhouzirui/language-partner/backend/internal/middleware"
	tutorModel "github.com/zhouzirui/language-partner/backend/internal/model/tutor"
	audioService "github.com/zhouzirui/language-partner/backend/internal/service/audio"
	chatService "github.com/zhouzirui/language-partner/backend/internal/service/chat"
	speechService "github.com/zhouzirui/language-partner/backend/internal/service/speech"
	"github.com/zhouzirui/language-partner/backend/pkg/utils"
)

// Services groups the dependencies the HTTP layer needs. Speech may be nil.
type Services struct {
	Tutors          tutorModel.Store
	Sessions        *chatService.Service
	Clips           *audioService.Store
	Speech          speechService.Engine
	DefaultLanguage string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": svc.Sessions.Count(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		tutor.New(svc.Tutors).RegisterRoutes(api)
		chat.New(svc.Sessions).RegisterRoutes(api)
		audio.New(svc.Clips).RegisterRoutes(api)

		if svc.Speech != nil {
			speech.New(svc.Speech, svc.Sessions, svc.DefaultLanguage).RegisterRoutes(api)
		} else {
			api.HandleFunc("/speech/*", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "speech service not configured")
			})
		}
	})

	return r
}
