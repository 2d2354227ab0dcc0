package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"formdesk/internal/archive"
	"formdesk/internal/session"
)

// Registry is the session lookup surface the API needs; kept as a consumer
// interface so tests can use fakes.
type Registry interface {
	Get(id string) (*session.Session, bool)
	Snapshot() []*session.Session
	Stats() map[string]int
}

// Archive is the read surface of the submission archive. A nil Archive means
// archiving is disabled.
type Archive interface {
	RecentSubmissions(ctx context.Context, limit int) ([]*archive.Submission, error)
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP surface: health, per-session form status/reset, session
// listing, and archived submissions. No business logic lives here, only HTTP
// handling and JSON serialization.
type Server struct {
	registry Registry
	archive  Archive
	router   *http.ServeMux
}

// NewServer creates the API server. archive may be nil.
func NewServer(registry Registry, archive Archive) *Server {
	s := &Server{
		registry: registry,
		archive:  archive,
		router:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleHealth))))
	s.router.Handle("/form/status", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleFormStatus))))
	s.router.Handle("/form/reset", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleFormReset))))
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/submissions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSubmissions))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string         `json:"status"`
	Service   string         `json:"service"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Sessions  map[string]int `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dbStatus := "disabled"
	if s.archive != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.archive.HealthCheck(ctx); err != nil {
			dbStatus = "unhealthy"
		} else {
			dbStatus = "healthy"
		}
	}

	s.sendJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Service:   "formdesk",
		Timestamp: time.Now(),
		Database:  dbStatus,
		Sessions:  s.registry.Stats(),
	})
}

// handleFormStatus reports the current form of one session. Forms are
// session-private, so the session must be named explicitly.
func (s *Server) handleFormStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}

	f := sess.Store.Current()
	if f == nil {
		s.sendJSON(w, http.StatusOK, map[string]interface{}{"status": "no_active_form"})
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "form": f})
}

// handleFormReset drops a session's current-form pointer.
func (s *Server) handleFormReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}

	sess.Store.ClearCurrent()
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Form reset",
	})
}

func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.sendError(w, "Missing required query parameter: session_id", http.StatusBadRequest)
		return nil, false
	}
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

type sessionInfo struct {
	ID      string `json:"id"`
	HasForm bool   `json:"has_form"`
	FormID  string `json:"form_id,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := s.registry.Snapshot()
	infos := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := sessionInfo{ID: sess.ID}
		if f := sess.Store.Current(); f != nil {
			info.HasForm = true
			info.FormID = f.ID
		}
		infos = append(infos, info)
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"sessions": infos})
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		s.sendError(w, "Submission archive is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	subs, err := s.archive.RecentSubmissions(r.Context(), limit)
	if err != nil {
		log.Printf("Failed to query submissions: %v", err)
		s.sendError(w, "Failed to query submissions", http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []*archive.Submission{}
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"submissions": subs})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, errorResponse{Error: message, Code: code})
}

// corsMiddleware applies a permissive CORS policy for web clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
