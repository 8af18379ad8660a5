package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
	tutormodel "github.com/zhouzirui/language-partner/backend/internal/model/tutor"
	"github.com/zhouzirui/language-partner/backend/internal/pipeline"
	"github.com/zhouzirui/language-partner/backend/internal/service/audio"
	"github.com/zhouzirui/language-partner/backend/internal/service/speech"
	"github.com/zhouzirui/language-partner/backend/internal/service/translation"
	"github.com/zhouzirui/language-partner/backend/internal/service/tutor"
)

func newTestService(withSpeech bool) *Service {
	deps := Dependencies{
		Tutors: tutormodel.NewMemoryStore(tutormodel.Seed()),
		Responders: func(profile tutormodel.Profile) pipeline.Responder {
			return tutor.NewStubResponder(profile)
		},
		Translator: translation.NewStubTranslator(&translation.StubConfig{}),
		Pipeline:   pipeline.Config{StageTimeout: 2 * time.Second},
	}
	if withSpeech {
		deps.Speech = &speech.StubEngine{Transcript: "こんにちは"}
		deps.Clips = audio.NewStore(16, time.Minute)
	}
	return NewService(deps)
}

func waitFor(t *testing.T, ch <-chan Notification, want NotificationType) Notification {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				t.Fatalf("notification channel closed while waiting for %s", want)
			}
			if n.Type == want {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s notification", want)
		}
	}
}

func TestCreateSessionUsesDefaultTutor(t *testing.T) {
	svc := newTestService(false)
	defer svc.CloseAll()

	conv, err := svc.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if conv.Session.TutorID != tutormodel.DefaultID || conv.Session.Language != "ja-JP" {
		t.Fatalf("unexpected session %+v", conv.Session)
	}
	got, err := svc.GetConversation(conv.Session.ID)
	if err != nil || got != conv {
		t.Fatalf("GetConversation returned %v, %v", got, err)
	}
}

func TestCreateSessionUnknownTutor(t *testing.T) {
	svc := newTestService(false)
	if _, err := svc.CreateSession(context.Background(), "klingon"); !errors.Is(err, ErrTutorNotFound) {
		t.Fatalf("expected ErrTutorNotFound, got %v", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	svc := newTestService(false)
	defer svc.CloseAll()

	a, _ := svc.CreateSession(context.Background(), "japanese-cafe")
	b, _ := svc.CreateSession(context.Background(), "spanish-small-talk")

	turn := a.Pipeline.SubmitUtterance("こんにちは", "")
	if err := turn.Wait(context.Background()); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if a.Store.Len() != 2 {
		t.Fatalf("expected 2 entries in session a, got %d", a.Store.Len())
	}
	if b.Store.Len() != 0 {
		t.Fatalf("session b must stay empty, got %d", b.Store.Len())
	}
}

func TestTurnNotifiesListenersAndPlaysOnce(t *testing.T) {
	svc := newTestService(true)
	defer svc.CloseAll()

	conv, err := svc.CreateSession(context.Background(), "japanese-cafe")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	events, stop := conv.Listen(64)
	defer stop()

	turn := conv.Pipeline.SubmitUtterance("コーヒーをください", "")
	appended := waitFor(t, events, NotifyAppended)
	if appended.Entry == nil || appended.Entry.Role != chat.RoleUser {
		t.Fatalf("first notification should carry the user entry: %+v", appended)
	}

	play := waitFor(t, events, NotifyPlay)
	if err := turn.Wait(context.Background()); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if play.EntryID != turn.BotEntryID() {
		t.Fatalf("played %s, want %s", play.EntryID, turn.BotEntryID())
	}
	if play.Entry == nil || !play.Entry.HasAudio() {
		t.Fatalf("play notification should carry audio: %+v", play.Entry)
	}
}

func TestCloseSessionEndsStream(t *testing.T) {
	svc := newTestService(false)
	conv, _ := svc.CreateSession(context.Background(), "")
	events, _ := conv.Listen(8)

	if err := svc.CloseSession(conv.Session.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	waitFor(t, events, NotifyCleared)
	if _, ok := <-events; ok {
		t.Fatalf("expected channel to be closed")
	}
	if _, err := svc.GetConversation(conv.Session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.CloseSession(conv.Session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second close should report ErrSessionNotFound, got %v", err)
	}
}

func TestCloseAll(t *testing.T) {
	svc := newTestService(false)
	for i := 0; i < 3; i++ {
		if _, err := svc.CreateSession(context.Background(), ""); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	svc.CloseAll()
	if svc.Count() != 0 {
		t.Fatalf("expected no sessions, got %d", svc.Count())
	}
}
