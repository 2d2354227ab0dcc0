package session

import (
	"log"

	"formdesk/internal/form"
)

// Broadcaster fans form-update events out to every registered session.
// Delivery is best-effort: a failed send is logged and skipped, it never
// aborts delivery to the remaining sessions.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// FormUpdate pushes a form snapshot to all live sessions.
func (b *Broadcaster) FormUpdate(f *form.Form) {
	if f == nil {
		return
	}

	msg := FormUpdateMessage{
		Type: MessageTypeFormUpdate,
		Data: f,
	}

	for _, sess := range b.registry.Snapshot() {
		if err := sess.Conn.WriteJSON(msg); err != nil {
			log.Printf("Broadcast to session %s failed: %v", sess.ID, err)
		}
	}
}
