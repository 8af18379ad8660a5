package chat

import (
	"log"
	"sync"

	"github.com/zhouzirui/language-partner/backend/internal/history"
	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
)

// NotificationType 标识推送给前端的事件类型。
type NotificationType string

const (
	NotifyAppended NotificationType = "appended"
	NotifyPatched  NotificationType = "patched"
	NotifyCleared  NotificationType = "cleared"
	NotifyPlay     NotificationType = "play"
	NotifyError    NotificationType = "error"
)

// Notification is one item of a session's live event stream.
type Notification struct {
	Type    NotificationType   `json:"event"`
	Entry   *chat.MessageEntry `json:"entry,omitempty"`
	Version uint64             `json:"version,omitempty"`
	EntryID string             `json:"entryId,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// hub fans notifications out to listeners. Sends never block: a listener
// that falls behind loses notifications instead of stalling the store.
type hub struct {
	mu        sync.Mutex
	listeners map[uint64]chan Notification
	nextID    uint64
	closed    bool
}

func newHub() *hub {
	return &hub{listeners: make(map[uint64]chan Notification)}
}

func (h *hub) listen(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Notification, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.listeners[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if l, ok := h.listeners[id]; ok {
			delete(h.listeners, id)
			close(l)
		}
	}
}

func (h *hub) publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.listeners {
		select {
		case ch <- n:
		default:
			log.Printf("[session] listener %d is full, dropping %s notification", id, n.Type)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.listeners {
		delete(h.listeners, id)
		close(ch)
	}
}

// observe converts store events into notifications.
func (h *hub) observe(event history.Event) {
	n := Notification{Type: NotificationType(event.Kind), Version: event.Version}
	if event.Kind != history.EventCleared {
		entry := event.Entry
		n.Entry = &entry
	}
	h.publish(n)
}

// Play implements playback.Player.
func (h *hub) Play(entry chat.MessageEntry) {
	h.publish(Notification{Type: NotifyPlay, Entry: &entry, EntryID: entry.ID})
}

func (h *hub) turnFailed(userEntryID string, err error) {
	h.publish(Notification{Type: NotifyError, EntryID: userEntryID, Error: err.Error()})
}
