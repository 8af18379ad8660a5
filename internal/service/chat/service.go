// Package chat manages tutoring sessions. Each session owns its own history
// store, pipeline and playback coordinator; nothing is shared between them.
package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/language-partner/backend/internal/history"
	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
	tutormodel "github.com/zhouzirui/language-partner/backend/internal/model/tutor"
	"github.com/zhouzirui/language-partner/backend/internal/pipeline"
	"github.com/zhouzirui/language-partner/backend/internal/playback"
	"github.com/zhouzirui/language-partner/backend/internal/service/audio"
	"github.com/zhouzirui/language-partner/backend/internal/service/speech"
	"github.com/zhouzirui/language-partner/backend/internal/service/translation"
)

var (
	ErrTutorNotFound   = errors.New("tutor not found")
	ErrSessionNotFound = errors.New("session not found")
)

// ResponderFactory returns the reply generator for a tutor profile.
type ResponderFactory func(profile tutormodel.Profile) pipeline.Responder

// Dependencies are shared by every session the service creates.
type Dependencies struct {
	Tutors         tutormodel.Store
	Responders     ResponderFactory
	Translator     translation.Translator
	TargetLanguage string
	// Speech is optional; without it replies carry no audio.
	Speech   speech.Engine
	Clips    *audio.Store
	Pipeline pipeline.Config
}

// Conversation bundles the per-session components.
type Conversation struct {
	Session  chat.Session
	Profile  tutormodel.Profile
	Store    *history.Store
	Pipeline *pipeline.Pipeline

	coordinator *playback.Coordinator
	hub         *hub
	unsubscribe func()
}

// Listen returns a channel of live notifications and a function that stops
// the subscription. The channel is closed when the session ends.
func (c *Conversation) Listen(buffer int) (<-chan Notification, func()) {
	return c.hub.listen(buffer)
}

func (c *Conversation) close() {
	c.Pipeline.Close()
	c.coordinator.Close()
	c.Store.Clear()
	c.unsubscribe()
	c.hub.close()
}

// Service encapsulates conversation state management.
type Service struct {
	deps Dependencies

	mu       sync.RWMutex
	sessions map[string]*Conversation
}

// NewService 创建会话管理服务。
func NewService(deps Dependencies) *Service {
	if deps.TargetLanguage == "" {
		deps.TargetLanguage = translation.DefaultTargetLanguage
	}
	return &Service{
		deps:     deps,
		sessions: make(map[string]*Conversation),
	}
}

// CreateSession provisions an anonymous session bound to a tutor. An empty
// tutorID selects the default tutor.
func (s *Service) CreateSession(_ context.Context, tutorID string) (*Conversation, error) {
	if tutorID == "" {
		tutorID = tutormodel.DefaultID
	}
	profile, ok := s.deps.Tutors.FindByID(tutorID)
	if !ok {
		return nil, ErrTutorNotFound
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		TutorID:   profile.ID,
		Language:  profile.Language,
		CreatedAt: time.Now().UTC(),
	}

	store := history.NewStore()
	events := newHub()

	deps := pipeline.Deps{
		Store:       store,
		Responder:   s.deps.Responders(profile),
		Translator:  translation.Bind(s.deps.Translator, s.deps.TargetLanguage),
		OnTurnError: events.turnFailed,
	}
	if s.deps.Clips != nil {
		deps.Clips = s.deps.Clips
	}
	if s.deps.Speech != nil {
		binding := speech.Bind(s.deps.Speech, session.ID, profile.VoiceID, profile.Language)
		deps.Synthesizer = binding
		deps.Transcriber = binding
	}

	p, err := pipeline.New(deps, s.deps.Pipeline)
	if err != nil {
		return nil, err
	}

	conv := &Conversation{
		Session:     session,
		Profile:     profile,
		Store:       store,
		Pipeline:    p,
		hub:         events,
		unsubscribe: store.Subscribe(events.observe),
	}
	conv.coordinator = playback.New(store, events)

	s.mu.Lock()
	s.sessions[session.ID] = conv
	s.mu.Unlock()

	log.Printf("[session] created id=%s tutor=%s", session.ID, profile.ID)
	return conv, nil
}

// GetConversation retrieves a live session.
func (s *Service) GetConversation(sessionID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conv, nil
}

// CloseSession stops the session's pipeline and discards its history.
func (s *Service) CloseSession(sessionID string) error {
	s.mu.Lock()
	conv, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	conv.close()
	log.Printf("[session] closed id=%s", sessionID)
	return nil
}

// CloseAll ends every session; used on shutdown.
func (s *Service) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Conversation)
	s.mu.Unlock()

	for _, conv := range sessions {
		conv.close()
	}
	if len(sessions) > 0 {
		log.Printf("[session] closed %d sessions", len(sessions))
	}
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
