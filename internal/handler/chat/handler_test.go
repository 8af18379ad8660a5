package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	tutormodel "github.com/zhouzirui/language-partner/backend/internal/model/tutor"
	"github.com/zhouzirui/language-partner/backend/internal/pipeline"
	chatservice "github.com/zhouzirui/language-partner/backend/internal/service/chat"
	"github.com/zhouzirui/language-partner/backend/internal/service/translation"
	"github.com/zhouzirui/language-partner/backend/internal/service/tutor"
)

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	svc := chatservice.NewService(chatservice.Dependencies{
		Tutors: tutormodel.NewMemoryStore(tutormodel.Seed()),
		Responders: func(profile tutormodel.Profile) pipeline.Responder {
			return tutor.NewStubResponder(profile)
		},
		Translator: translation.NewStubTranslator(&translation.StubConfig{}),
	})
	t.Cleanup(svc.CloseAll)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/session", map[string]string{"tutorId": tutormodel.DefaultID})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload.Session.ID
}

func submitAndWait(t *testing.T, r http.Handler, sessionID, text string) (string, string) {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/session/"+sessionID+"/messages?wait=true", map[string]string{"text": text})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload["userEntryId"], payload["botEntryId"]
}

func TestCreateSession(t *testing.T) {
	r, _ := setupRouter(t)
	createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session", map[string]string{"tutorId": "non-existent"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodPost, "/session", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("empty body should select the default tutor, got %d", resp.Code)
	}
}

func TestSubmitTextQueuesTurn(t *testing.T) {
	r, svc := setupRouter(t)
	sessionID := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+sessionID+"/messages", map[string]string{"text": "こんにちは"})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}

	conv, err := svc.GetConversation(sessionID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.Store.Len() < 1 {
		t.Fatalf("user entry should be appended before the response")
	}
}

func TestSubmitBlankText(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+sessionID+"/messages", map[string]string{"text": "  "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestMessagesSegmentsAndKeywords(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)
	_, botID := submitAndWait(t, r, sessionID, "コーヒー")

	resp := doJSON(t, r, http.MethodGet, "/session/"+sessionID+"/messages", nil)
	var listing struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(listing.Messages))
	}

	resp = doJSON(t, r, http.MethodGet, "/session/"+sessionID+"/messages/"+botID+"/segments", nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"kind":"keyword"`) {
		t.Fatalf("unexpected segments response %d: %s", resp.Code, resp.Body.String())
	}

	path := "/session/" + sessionID + "/messages/" + botID + "/keywords/" + url.PathEscape("もっと")
	resp = doJSON(t, r, http.MethodGet, path, nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "[en] もっと") {
		t.Fatalf("unexpected keyword response %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, r, http.MethodGet, "/session/"+sessionID+"/messages/"+botID+"/keywords/absent", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown keyword, got %d", resp.Code)
	}
}

func TestFullTranslation(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)
	userID, _ := submitAndWait(t, r, sessionID, "駅")

	resp := doJSON(t, r, http.MethodPost, "/session/"+sessionID+"/messages/"+userID+"/translation", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["translation"] != "[en] 駅" {
		t.Fatalf("unexpected translation %q", payload["translation"])
	}

	resp = doJSON(t, r, http.MethodPost, "/session/"+sessionID+"/messages/missing/translation", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	r, _ := setupRouter(t)
	resp := doJSON(t, r, http.MethodGet, "/session/nope/messages", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestCloseSession(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)

	resp := doJSON(t, r, http.MethodDelete, "/session/"+sessionID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	resp = doJSON(t, r, http.MethodDelete, "/session/"+sessionID, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.Code)
	}
}

func TestSubmitAudioWithoutSpeech(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "clip.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("RIFF...."))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/session/"+sessionID+"/audio", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestEventsStreamStartsWithSnapshot(t *testing.T) {
	r, _ := setupRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	sessionID := createSession(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/session/"+sessionID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(line) != "event: snapshot" {
		t.Fatalf("expected snapshot first, got %q", line)
	}
}

func TestInferAudioFormat(t *testing.T) {
	cases := map[string]string{
		"a.MP3":   "mp3",
		"b.webm":  "webm",
		"c":       "wav",
		"d.flacc": "wav",
	}
	for name, want := range cases {
		if got := inferAudioFormat(name); got != want {
			t.Fatalf("inferAudioFormat(%q) = %q, want %q", name, got, want)
		}
	}
}
