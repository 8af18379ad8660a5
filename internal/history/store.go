// Package history holds the in-memory, append-only conversation log of one
// tutoring session and pushes every change to subscribed observers.
package history

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
)

// ErrDuplicateEntry is returned when an entry id is already present.
var ErrDuplicateEntry = errors.New("history entry already exists")

// EventKind 标识一次状态变化的类型。
type EventKind string

const (
	EventAppended EventKind = "appended"
	EventPatched  EventKind = "patched"
	EventCleared  EventKind = "cleared"
)

// Event is delivered to observers after a mutation has been fully applied.
// Snapshot is the complete state produced by that mutation and must be
// treated as read-only.
type Event struct {
	Kind     EventKind
	Entry    chat.MessageEntry
	Snapshot []chat.MessageEntry
	Version  uint64
}

// Latest returns the newest entry of the snapshot carried by the event.
func (e Event) Latest() (chat.MessageEntry, bool) {
	if len(e.Snapshot) == 0 {
		return chat.MessageEntry{}, false
	}
	return e.Snapshot[len(e.Snapshot)-1], true
}

// Observer receives store events. It runs on the goroutine that mutated the
// store and must not call Append, Patch or Clear synchronously.
type Observer func(Event)

// Patch lists the post-creation fields that may change. Nil fields are left
// untouched; KeywordTranslations is merged into the existing mapping.
type Patch struct {
	AudioRef            *string
	FullTranslation     *string
	KeywordTranslations map[string]string
}

func (p Patch) empty() bool {
	return p.AudioRef == nil && p.FullTranslation == nil && len(p.KeywordTranslations) == 0
}

// WithAudio builds a patch that attaches an audio reference.
func WithAudio(ref string) Patch {
	return Patch{AudioRef: &ref}
}

// WithFullTranslation builds a patch that caches the full translation.
func WithFullTranslation(text string) Patch {
	return Patch{FullTranslation: &text}
}

type subscription struct {
	id uint64
	fn Observer
}

// Store is the single shared mutable resource of a session. Every mutation
// replaces the entries slice instead of editing it, so snapshots handed out
// earlier never change underneath their holders.
type Store struct {
	// notifyMu serialises mutation plus notification so observers see events
	// in call order.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	entries   []chat.MessageEntry
	index     map[string]int
	version   uint64
	observers []subscription
	nextSubID uint64
}

// NewStore 创建一个空的会话历史。
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Append adds an entry at the end of the log. An empty ID is replaced with a
// fresh uuid and a zero CreatedAt with the current UTC time.
func (s *Store) Append(entry chat.MessageEntry) (chat.MessageEntry, error) {
	entry = entry.Clone()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if _, exists := s.index[entry.ID]; exists {
		s.mu.Unlock()
		return chat.MessageEntry{}, ErrDuplicateEntry
	}
	next := make([]chat.MessageEntry, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	next = append(next, entry)
	s.index[entry.ID] = len(next) - 1
	s.entries = next
	s.version++
	event := Event{Kind: EventAppended, Entry: entry, Snapshot: next, Version: s.version}
	observers := s.observersLocked()
	s.mu.Unlock()

	notify(observers, event)
	return entry.Clone(), nil
}

// Patch updates the mutable fields of the entry with the given id. It is a
// no-op returning false when the id is unknown or the patch is empty.
func (s *Store) Patch(id string, patch Patch) bool {
	if patch.empty() {
		return false
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	updated := s.entries[pos].Clone()
	if patch.AudioRef != nil {
		updated.AudioRef = *patch.AudioRef
	}
	if patch.FullTranslation != nil {
		updated.FullTranslation = *patch.FullTranslation
	}
	if len(patch.KeywordTranslations) > 0 {
		if updated.KeywordTranslations == nil {
			updated.KeywordTranslations = make(map[string]string, len(patch.KeywordTranslations))
		}
		for k, v := range patch.KeywordTranslations {
			updated.KeywordTranslations[k] = v
		}
	}

	next := make([]chat.MessageEntry, len(s.entries))
	copy(next, s.entries)
	next[pos] = updated
	s.entries = next
	s.version++
	event := Event{Kind: EventPatched, Entry: updated, Snapshot: next, Version: s.version}
	observers := s.observersLocked()
	s.mu.Unlock()

	notify(observers, event)
	return true
}

// Clear drops every entry. It is called when the session ends.
func (s *Store) Clear() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.entries = nil
	s.index = make(map[string]int)
	s.version++
	event := Event{Kind: EventCleared, Version: s.version}
	observers := s.observersLocked()
	s.mu.Unlock()

	notify(observers, event)
}

// Snapshot returns a deep copy of the log in insertion order.
func (s *Store) Snapshot() []chat.MessageEntry {
	entries, _ := s.VersionedSnapshot()
	return entries
}

// VersionedSnapshot returns the log together with the version it was read at.
func (s *Store) VersionedSnapshot() ([]chat.MessageEntry, uint64) {
	s.mu.RLock()
	entries, version := s.entries, s.version
	s.mu.RUnlock()

	out := make([]chat.MessageEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out, version
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (chat.MessageEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return chat.MessageEntry{}, false
	}
	return s.entries[pos].Clone(), true
}

// Len 返回当前条目数量。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Version increases by one on every successful mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.observers {
				if sub.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) observersLocked() []subscription {
	return append([]subscription(nil), s.observers...)
}

func notify(observers []subscription, event Event) {
	for _, sub := range observers {
		sub.fn(event)
	}
}
