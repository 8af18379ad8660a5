package audio

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/language-partner/backend/internal/model/speech"
	audiostore "github.com/zhouzirui/language-partner/backend/internal/service/audio"
)

func TestGetAudio(t *testing.T) {
	store := audiostore.NewStore(4, time.Minute)
	ref := store.Put(speech.Clip{Data: []byte("ID3data"), Format: "mp3"})

	r := chi.NewRouter()
	New(store).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/"+ref, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Body.String() != "ID3data" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
