package session

import (
	"log"
	"sync"

	"formdesk/internal/form"
)

// Session is one live connection and its private form state. It is owned by
// the handler goroutine that created it and registered for the lifetime of
// the connection.
type Session struct {
	ID    string
	Conn  Conn
	Store *form.Store
}

// Registry is the process-wide table of live sessions, shared by every
// session handler. Insert, remove, and snapshot are mutually exclusive so a
// broadcast always observes a consistent set of sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register inserts a session. If an entry with the same id already exists
// its connection is closed asynchronously and replaced.
func (r *Registry) Register(sess *Session) error {
	if sess == nil {
		return ErrNilSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[sess.ID]; ok && existing.Conn != sess.Conn {
		// Close the displaced connection outside the lock to avoid blocking
		// registration on a slow close.
		go func() {
			if err := existing.Conn.Close(); err != nil {
				log.Printf("Failed to close replaced connection %s: %v", sess.ID, err)
			}
		}()
	}

	r.sessions[sess.ID] = sess
	return nil
}

// Unregister removes a session by id. Removing an absent id is a no-op, so
// concurrent cleanup paths can both call it safely.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session for a connection id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Snapshot returns a point-in-time copy of all live sessions, safe to
// iterate while other goroutines register and unregister.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats returns registry statistics for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	withForm := 0
	for _, sess := range r.sessions {
		if sess.Store != nil && sess.Store.Current() != nil {
			withForm++
		}
	}
	return map[string]int{
		"active_sessions":    len(r.sessions),
		"sessions_with_form": withForm,
	}
}
