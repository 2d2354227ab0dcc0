package form

import (
	"fmt"
	"sync"
	"time"
)

// SubmitPolicy decides what happens to the current-form pointer after a
// successful submit. Both interpretations are supported; the choice is
// configuration-driven.
type SubmitPolicy int

const (
	// RetainCurrent leaves the submitted form addressable as current.
	RetainCurrent SubmitPolicy = iota
	// ClearCurrent drops the current-form pointer on successful submit.
	ClearCurrent
)

// DefaultFormType is used when a tool call does not name a form type.
const DefaultFormType = "default"

// Store owns all forms created within one session and tracks which form is
// current. A store is created with its session and destroyed with it; forms
// are never shared across sessions.
//
// Operations are guarded by a mutex: the session goroutine mutates the store
// while HTTP status/reset handlers read it concurrently. Mutating operations
// return clones so callers never hold a reference into live store state.
type Store struct {
	mu      sync.Mutex
	forms   map[string]*Form
	current string
	policy  SubmitPolicy
}

// NewStore creates an empty store with the given submit policy.
func NewStore(policy SubmitPolicy) *Store {
	return &Store{
		forms:  make(map[string]*Form),
		policy: policy,
	}
}

// CreateForm generates a fresh form with the fixed schema, inserts it, and
// makes it current. The prior current form stays in the store but is no
// longer addressable by UpdateField/Submit. Always succeeds.
func (s *Store) CreateForm(formType string) *Form {
	if formType == "" {
		formType = DefaultFormType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	id := s.nextID(now)
	f := newForm(id, formType, now)
	s.forms[id] = f
	s.current = id
	return f.Clone()
}

// nextID derives a form id from the creation time, extending it with a
// counter when two forms land on the same second. Caller holds s.mu.
func (s *Store) nextID(now time.Time) string {
	base := "form_" + now.Format("20060102_150405")
	id := base
	for n := 1; ; n++ {
		if _, taken := s.forms[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// UpdateField sets the value of one schema field on the current form. An
// empty value is legal. Returns a snapshot of the mutated form.
func (s *Store) UpdateField(fieldName, value string) (*Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.currentLocked()
	if err != nil {
		return nil, err
	}

	field, ok := f.Fields[fieldName]
	if !ok {
		return nil, &UnknownFieldError{Field: fieldName}
	}

	field.Value = value
	now := time.Now()
	f.UpdatedAt = &now
	return f.Clone(), nil
}

// Submit validates the current form and, when every required field is
// filled, marks it submitted. Validation walks all schema fields and
// accumulates every violation; a partial failure never short-circuits. On
// validation failure the form is left unchanged and may be corrected and
// resubmitted.
func (s *Store) Submit() (*Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.currentLocked()
	if err != nil {
		return nil, err
	}

	var violations []string
	for _, sf := range schema {
		field := f.Fields[sf.Name]
		if field.Required && field.Value == "" {
			violations = append(violations, sf.Name+" is required")
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	now := time.Now()
	f.Status = StatusSubmitted
	f.SubmittedAt = &now
	if s.policy == ClearCurrent {
		s.current = ""
	}
	return f.Clone(), nil
}

// currentLocked resolves the current form. Caller holds s.mu.
func (s *Store) currentLocked() (*Form, error) {
	if s.current == "" {
		return nil, ErrNoActiveForm
	}
	f, ok := s.forms[s.current]
	if !ok {
		// Defensive: the current pointer must always key the forms map.
		return nil, ErrFormNotFound
	}
	return f, nil
}

// Current returns a snapshot of the current form, or nil when none is set.
func (s *Store) Current() *Form {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		return nil
	}
	return s.forms[s.current].Clone()
}

// ClearCurrent drops the current-form pointer. The form itself stays in the
// store.
func (s *Store) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
}

// Count reports how many forms the store holds.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms)
}

// Has reports whether the store holds a form with the given id.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.forms[id]
	return ok
}
