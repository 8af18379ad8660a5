// Package playback triggers audio playback for freshly voiced tutor replies.
package playback

import (
	"log"
	"sync"

	"github.com/zhouzirui/language-partner/backend/internal/history"
	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
)

// Player starts playback of an entry's audio. It is called on the goroutine
// that mutated the store and must return quickly.
type Player interface {
	Play(entry chat.MessageEntry)
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(entry chat.MessageEntry)

func (f PlayerFunc) Play(entry chat.MessageEntry) { f(entry) }

// Coordinator watches the newest history entry and plays each voiced bot
// entry exactly once.
type Coordinator struct {
	mu          sync.Mutex
	player      Player
	lastPlayed  string
	unsubscribe func()
	closeOnce   sync.Once
}

// New subscribes a coordinator to store.
func New(store *history.Store, player Player) *Coordinator {
	c := &Coordinator{player: player}
	c.unsubscribe = store.Subscribe(c.handle)
	return c
}

// LastPlayed returns the id of the entry played most recently.
func (c *Coordinator) LastPlayed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPlayed
}

// Close stops observing the store.
func (c *Coordinator) Close() {
	c.closeOnce.Do(c.unsubscribe)
}

func (c *Coordinator) handle(event history.Event) {
	if event.Kind == history.EventCleared {
		c.mu.Lock()
		c.lastPlayed = ""
		c.mu.Unlock()
		return
	}

	latest, ok := event.Latest()
	if !ok || latest.Role != chat.RoleBot || !latest.HasAudio() {
		return
	}

	c.mu.Lock()
	if latest.ID == c.lastPlayed {
		c.mu.Unlock()
		return
	}
	c.lastPlayed = latest.ID
	c.mu.Unlock()

	log.Printf("[playback] play entry=%s audio=%s", latest.ID, latest.AudioRef)
	c.player.Play(latest)
}
