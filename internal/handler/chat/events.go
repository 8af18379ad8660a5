package chat

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/zhouzirui/language-partner/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// handleEvents streams history changes and play requests as SSE. The first
// event is a full snapshot; clients drop later events whose version is not
// newer than the snapshot's.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	notifications, stop := conv.Listen(64)
	defer stop()

	utils.SetupSSEHeaders(w)
	messages, version := conv.Store.VersionedSnapshot()
	if err := utils.SendSSEEvent(w, flusher, "snapshot", eventID(version), map[string]any{
		"version":  version,
		"messages": messages,
	}); err != nil {
		log.Printf("[sse] write snapshot for session=%s: %v", conv.Session.ID, err)
		return
	}

	sessionID := conv.Session.ID
	log.Printf("[sse] opening event stream for session=%s", sessionID)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			log.Printf("[sse] client left session=%s", sessionID)
			return
		case n, ok := <-notifications:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "closed", "", map[string]string{"sessionId": sessionID})
				return
			}
			err = utils.SendSSEEvent(w, flusher, string(n.Type), eventID(n.Version), n)
		case t := <-ticker.C:
			err = utils.SendSSEEvent(w, flusher, "heartbeat", "", map[string]string{
				"time": t.UTC().Format(time.RFC3339),
			})
		}
		if err != nil {
			log.Printf("[sse] write failed for session=%s: %v", sessionID, err)
			return
		}
	}
}

// eventID uses the store version; play and error notifications carry none.
func eventID(version uint64) string {
	if version == 0 {
		return ""
	}
	return strconv.FormatUint(version, 10)
}
