package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tutorModel "github.com/zhouzirui/language-partner/backend/internal/model/tutor"
	"github.com/zhouzirui/language-partner/backend/internal/pipeline"
	audioService "github.com/zhouzirui/language-partner/backend/internal/service/audio"
	chatService "github.com/zhouzirui/language-partner/backend/internal/service/chat"
	"github.com/zhouzirui/language-partner/backend/internal/service/translation"
	tutorService "github.com/zhouzirui/language-partner/backend/internal/service/tutor"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	tutors := tutorModel.NewMemoryStore(tutorModel.Seed())
	sessions := chatService.NewService(chatService.Dependencies{
		Tutors: tutors,
		Responders: func(profile tutorModel.Profile) pipeline.Responder {
			return tutorService.NewStubResponder(profile)
		},
		Translator: translation.NewStubTranslator(nil),
	})
	t.Cleanup(sessions.CloseAll)

	return NewRouter(Services{
		Tutors:   tutors,
		Sessions: sessions,
		Clips:    audioService.NewStore(8, time.Minute),
	})
}

func TestRouterServesAPI(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/healthz", "/api/tutors"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestRouterSpeechDisabled(t *testing.T) {
	r := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/speech/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
