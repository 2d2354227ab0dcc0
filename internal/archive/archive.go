// Package archive persists submitted forms to sqlite. Live session state is
// never persisted; only completed submissions are recorded, so the core
// message path stays free of database I/O.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"formdesk/internal/form"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS submissions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	form_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	form_type    TEXT NOT NULL,
	fields       TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	submitted_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_session ON submissions(session_id);
`

// Submission is one archived form submission.
type Submission struct {
	ID          int64         `json:"id"`
	FormID      string        `json:"form_id"`
	SessionID   string        `json:"session_id"`
	FormType    string        `json:"form_type"`
	Fields      form.FieldMap `json:"fields"`
	CreatedAt   time.Time     `json:"created_at"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// writeOperation is one queued insert for the single-writer goroutine.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Store is the submission archive. All writes go through a single goroutine
// to avoid sqlite write contention; reads use the connection pool directly.
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	mu           sync.RWMutex
	closed       bool
}

// NewStore opens (and if needed creates) the archive database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	s := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// once on failure.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				log.Printf("Archive write failed, retrying: %v", err)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("Archive write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

// executeWrite queues a write and waits for its completion or context end.
func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrArchiveClosed
	}
	s.mu.RUnlock()

	op := writeOperation{
		operation: operation,
		result:    make(chan error, 1),
	}

	select {
	case s.writeChannel <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrArchiveClosed
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrArchiveClosed
	}
}

// RecordSubmission archives a submitted form snapshot.
func (s *Store) RecordSubmission(ctx context.Context, sessionID string, f *form.Form) error {
	if f == nil {
		return ErrNilForm
	}
	if f.Status != form.StatusSubmitted || f.SubmittedAt == nil {
		return ErrNotSubmitted
	}

	fields, err := json.Marshal(f.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO submissions (form_id, session_id, form_type, fields, created_at, submitted_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, sessionID, f.Type, string(fields), f.CreatedAt, *f.SubmittedAt)
		return err
	})
}

// RecentSubmissions returns the newest submissions, most recent first.
func (s *Store) RecentSubmissions(ctx context.Context, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.querySubmissions(ctx,
		`SELECT id, form_id, session_id, form_type, fields, created_at, submitted_at
		 FROM submissions ORDER BY submitted_at DESC, id DESC LIMIT ?`, limit)
}

// SessionSubmissions returns all submissions recorded for one session, in
// submission order.
func (s *Store) SessionSubmissions(ctx context.Context, sessionID string) ([]*Submission, error) {
	return s.querySubmissions(ctx,
		`SELECT id, form_id, session_id, form_type, fields, created_at, submitted_at
		 FROM submissions WHERE session_id = ? ORDER BY id`, sessionID)
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...interface{}) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*Submission
	for rows.Next() {
		var sub Submission
		var fields string
		if err := rows.Scan(&sub.ID, &sub.FormID, &sub.SessionID, &sub.FormType,
			&fields, &sub.CreatedAt, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &sub.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields for %s: %w", sub.FormID, err)
		}
		submissions = append(submissions, &sub)
	}
	return submissions, rows.Err()
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrArchiveClosed
	}
	return s.db.PingContext(ctx)
}

// Close stops the writer goroutine and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}
