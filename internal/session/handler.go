package session

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"formdesk/internal/dispatch"
	"formdesk/internal/form"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; production deployments should tighten this.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Archiver records submitted forms for later inspection. A nil Archiver
// disables archiving.
type Archiver interface {
	RecordSubmission(ctx context.Context, sessionID string, f *form.Form) error
}

// Options tunes per-session behavior. Zero values fall back to defaults.
type Options struct {
	SubmitPolicy form.SubmitPolicy
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

// Handler accepts websocket connections and runs one session per
// connection: accept, receive loop, message-type routing, cleanup. A single
// session's fault never affects other sessions.
type Handler struct {
	registry    *Registry
	broadcaster *Broadcaster
	archive     Archiver
	opts        Options
}

// NewHandler creates a session handler.
func NewHandler(registry *Registry, broadcaster *Broadcaster, archive Archiver, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	return &Handler{
		registry:    registry,
		broadcaster: broadcaster,
		archive:     archive,
		opts:        opts,
	}
}

// HandleWebSocket upgrades the request, builds the session with its private
// form store, registers it, and hands it to the session goroutine.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	sess := &Session{
		ID:    wsConn.ID(),
		Conn:  wsConn,
		Store: form.NewStore(h.opts.SubmitPolicy),
	}

	if err := h.registry.Register(sess); err != nil {
		log.Printf("Session registration failed: %v", err)
		_ = wsConn.Close()
		return
	}
	log.Printf("Session connected: %s", sess.ID)

	go h.runSession(sess, wsConn)
}

// runSession is the per-connection worker: it reads messages in receipt
// order, dispatches them synchronously, and cleans up exactly once on
// receive failure, parse failure, or closure.
func (h *Handler) runSession(sess *Session, conn *Connection) {
	defer func() {
		h.registry.Unregister(sess.ID)
		_ = conn.Close()
		log.Printf("Session closed: %s", sess.ID)
	}()

	dispatcher := dispatch.NewDispatcher(sess.Store)

	// Heartbeat: protocol-level ping with a sliding read deadline.
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline for %s: %v", sess.ID, err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("Session %s read error: %v", sess.ID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			// A malformed frame is a transport fault: terminate this
			// session only.
			log.Printf("Session %s sent malformed JSON: %v", sess.ID, err)
			return
		}

		h.routeMessage(sess, dispatcher, msg)
	}
}

// routeMessage routes one inbound message by its type tag. Every tool call
// yields a reply; only transport faults terminate the connection.
func (h *Handler) routeMessage(sess *Session, dispatcher *dispatch.Dispatcher, msg map[string]interface{}) {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case MessageTypePing:
		h.reply(sess, pongMessage{Type: MessageTypePong})

	case MessageTypeToolCall:
		tool, _ := msg["tool"].(string)
		args, _ := msg["args"].(map[string]interface{})
		if args == nil {
			args = map[string]interface{}{}
		}

		env, mutated := dispatcher.Dispatch(tool, args)
		h.reply(sess, env)

		if mutated {
			// Broadcast the freshest snapshot: the envelope form when the
			// call produced one, otherwise whatever is current.
			snapshot := env.Form
			if snapshot == nil {
				snapshot = sess.Store.Current()
			}
			h.broadcaster.FormUpdate(snapshot)

			if env.Status == dispatch.StatusSuccess && env.Form != nil && env.Form.Status == form.StatusSubmitted {
				h.archiveSubmission(sess.ID, env.Form)
			}
		}

	default:
		h.reply(sess, echoMessage{Type: MessageTypeEcho, Data: msg})
	}
}

// reply sends a message to the session's own connection. Send failures are
// logged; the read loop notices the broken transport on its own.
func (h *Handler) reply(sess *Session, v interface{}) {
	if err := sess.Conn.WriteJSON(v); err != nil {
		log.Printf("Reply to session %s failed: %v", sess.ID, err)
	}
}

// archiveSubmission records a submitted form, best-effort.
func (h *Handler) archiveSubmission(sessionID string, f *form.Form) {
	if h.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.archive.RecordSubmission(ctx, sessionID, f); err != nil {
		log.Printf("Failed to archive submission %s: %v", f.ID, err)
	}
}
