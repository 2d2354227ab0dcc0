package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestStore_CreateForm(t *testing.T) {
	store := NewStore(RetainCurrent)

	f := store.CreateForm("contact")
	if f == nil {
		t.Fatal("CreateForm should return a form")
	}
	if f.Type != "contact" {
		t.Errorf("Expected form type 'contact', got %s", f.Type)
	}
	if f.Status != StatusActive {
		t.Errorf("Expected status %s, got %s", StatusActive, f.Status)
	}
	if !strings.HasPrefix(f.ID, "form_") {
		t.Errorf("Expected time-derived id with form_ prefix, got %s", f.ID)
	}
	if f.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	// Fixed schema with empty values
	if len(f.Fields) != 4 {
		t.Fatalf("Expected 4 schema fields, got %d", len(f.Fields))
	}
	for _, name := range []string{"name", "email", "phone", "message"} {
		field, ok := f.Fields[name]
		if !ok {
			t.Fatalf("Expected schema field %s to exist", name)
		}
		if field.Value != "" {
			t.Errorf("Expected empty value for %s, got %q", name, field.Value)
		}
	}
	if !f.Fields["name"].Required || !f.Fields["email"].Required {
		t.Error("name and email must be required")
	}
	if f.Fields["phone"].Required || f.Fields["message"].Required {
		t.Error("phone and message must be optional")
	}
}

func TestStore_CreateForm_DefaultType(t *testing.T) {
	store := NewStore(RetainCurrent)
	f := store.CreateForm("")
	if f.Type != DefaultFormType {
		t.Errorf("Expected default form type, got %s", f.Type)
	}
}

func TestStore_CreateForm_CollisionTieBreak(t *testing.T) {
	store := NewStore(RetainCurrent)

	// Forms created within the same second must still get unique ids.
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		f := store.CreateForm("default")
		if seen[f.ID] {
			t.Fatalf("Duplicate form id generated: %s", f.ID)
		}
		seen[f.ID] = true
	}
	if store.Count() != 5 {
		t.Errorf("Expected 5 forms in store, got %d", store.Count())
	}
}

func TestStore_CreateForm_ReplacesCurrent(t *testing.T) {
	store := NewStore(RetainCurrent)

	first := store.CreateForm("default")
	second := store.CreateForm("default")

	current := store.Current()
	if current == nil || current.ID != second.ID {
		t.Fatalf("Expected current form %s, got %+v", second.ID, current)
	}
	// The prior form remains in the store but is no longer addressable.
	if !store.Has(first.ID) {
		t.Error("Prior form should remain in the store")
	}
	if _, err := store.UpdateField("name", "Alice"); err != nil {
		t.Errorf("Update against new current form should succeed, got %v", err)
	}
	if f := store.Current(); f.ID != second.ID || f.Fields["name"].Value != "Alice" {
		t.Error("Update should target the new current form")
	}
}

func TestStore_UpdateField(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")

	f, err := store.UpdateField("email", "alice@example.com")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.Fields["email"].Value != "alice@example.com" {
		t.Errorf("Expected field value to be set, got %q", f.Fields["email"].Value)
	}
	if f.UpdatedAt == nil {
		t.Error("UpdatedAt should be refreshed on update")
	}
}

func TestStore_UpdateField_EmptyValueIsLegal(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")

	if _, err := store.UpdateField("name", "Alice"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	f, err := store.UpdateField("name", "")
	if err != nil {
		t.Fatalf("Clearing a field should succeed, got %v", err)
	}
	if f.Fields["name"].Value != "" {
		t.Errorf("Expected cleared value, got %q", f.Fields["name"].Value)
	}
}

func TestStore_UpdateField_NoActiveForm(t *testing.T) {
	store := NewStore(RetainCurrent)

	_, err := store.UpdateField("name", "Alice")
	if !errors.Is(err, ErrNoActiveForm) {
		t.Errorf("Expected ErrNoActiveForm, got %v", err)
	}
}

func TestStore_UpdateField_UnknownField(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")

	for _, value := range []string{"", "something"} {
		_, err := store.UpdateField("unknown_field", value)
		var ufe *UnknownFieldError
		if !errors.As(err, &ufe) {
			t.Fatalf("Expected UnknownFieldError, got %v", err)
		}
		if ufe.Field != "unknown_field" {
			t.Errorf("Expected field name in error, got %s", ufe.Field)
		}
	}
}

func TestStore_UpdateField_SchemaKeySetFixed(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")

	updates := [][2]string{
		{"name", "Alice"}, {"email", "a@b.c"}, {"phone", "555"},
		{"message", "hi"}, {"name", ""}, {"phone", "556"},
	}
	for _, u := range updates {
		if _, err := store.UpdateField(u[0], u[1]); err != nil {
			t.Fatalf("Update %v failed: %v", u, err)
		}
	}

	f := store.Current()
	if len(f.Fields) != 4 {
		t.Errorf("Field key set must stay fixed at 4, got %d", len(f.Fields))
	}
	for _, name := range FieldNames() {
		if _, ok := f.Fields[name]; !ok {
			t.Errorf("Schema field %s missing after updates", name)
		}
	}
}

func TestStore_Submit_AccumulatesAllViolations(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")

	// phone filled, both required fields missing: every violation must be
	// reported, in schema order.
	if _, err := store.UpdateField("phone", "555-0100"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	_, err := store.Submit()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	expected := []string{"name is required", "email is required"}
	if len(ve.Violations) != len(expected) {
		t.Fatalf("Expected %d violations, got %v", len(expected), ve.Violations)
	}
	for i, want := range expected {
		if ve.Violations[i] != want {
			t.Errorf("Violation %d: expected %q, got %q", i, want, ve.Violations[i])
		}
	}

	// The form must be left unchanged and resubmittable.
	f := store.Current()
	if f.Status != StatusActive {
		t.Errorf("Failed submit must leave status active, got %s", f.Status)
	}
	if f.SubmittedAt != nil {
		t.Error("Failed submit must not set SubmittedAt")
	}
}

func TestStore_Submit_Success(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")

	if _, err := store.UpdateField("name", "Alice"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.UpdateField("email", "alice@example.com"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// phone and message are optional and may stay empty.
	f, err := store.Submit()
	if err != nil {
		t.Fatalf("Expected successful submit, got %v", err)
	}
	if f.Status != StatusSubmitted {
		t.Errorf("Expected status %s, got %s", StatusSubmitted, f.Status)
	}
	if f.SubmittedAt == nil {
		t.Error("SubmittedAt should be set on successful submit")
	}
}

func TestStore_Submit_NoActiveForm(t *testing.T) {
	store := NewStore(RetainCurrent)
	_, err := store.Submit()
	if !errors.Is(err, ErrNoActiveForm) {
		t.Errorf("Expected ErrNoActiveForm, got %v", err)
	}
}

func TestStore_Submit_AfterCorrection(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")

	if _, err := store.Submit(); err == nil {
		t.Fatal("Submit of empty form should fail validation")
	}
	if _, err := store.UpdateField("name", "Alice"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.UpdateField("email", "alice@example.com"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.Submit(); err != nil {
		t.Errorf("Resubmit after correction should succeed, got %v", err)
	}
}

func TestStore_SubmitPolicy(t *testing.T) {
	// RetainCurrent: the submitted form stays addressable as current.
	retain := NewStore(RetainCurrent)
	retain.CreateForm("default")
	fillRequired(t, retain)
	if _, err := retain.Submit(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if f := retain.Current(); f == nil || f.Status != StatusSubmitted {
		t.Error("RetainCurrent: submitted form should remain current")
	}

	// ClearCurrent: the pointer is dropped, further updates need a new form.
	clear := NewStore(ClearCurrent)
	clear.CreateForm("default")
	fillRequired(t, clear)
	if _, err := clear.Submit(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if f := clear.Current(); f != nil {
		t.Error("ClearCurrent: no form should be current after submit")
	}
	if _, err := clear.UpdateField("name", "Bob"); !errors.Is(err, ErrNoActiveForm) {
		t.Errorf("Expected ErrNoActiveForm after cleared submit, got %v", err)
	}
}

func TestStore_ClearCurrent(t *testing.T) {
	store := NewStore(RetainCurrent)
	f := store.CreateForm("default")

	store.ClearCurrent()
	if store.Current() != nil {
		t.Error("Current should be nil after ClearCurrent")
	}
	if !store.Has(f.ID) {
		t.Error("Cleared form should remain in the store")
	}
	// Idempotent
	store.ClearCurrent()
	if store.Current() != nil {
		t.Error("Repeated ClearCurrent should stay nil")
	}
}

func TestStore_CurrentReturnsSnapshot(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")

	snap := store.Current()
	snap.Fields["name"].Value = "mutated externally"

	if f := store.Current(); f.Fields["name"].Value != "" {
		t.Error("Mutating a snapshot must not affect store state")
	}
}

func TestStore_SessionIsolation(t *testing.T) {
	// Independent stores driven concurrently must never observe each
	// other's form instances.
	const sessions = 8
	stores := make([]*Store, sessions)
	ids := make([][]string, sessions)

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		stores[i] = NewStore(RetainCurrent)
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				f := stores[n].CreateForm(fmt.Sprintf("type_%d", n))
				ids[n] = append(ids[n], f.ID)
				if _, err := stores[n].UpdateField("name", fmt.Sprintf("user_%d", n)); err != nil {
					t.Errorf("Update failed in session %d: %v", n, err)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		for j := 0; j < sessions; j++ {
			if i == j {
				continue
			}
			for _, id := range ids[j] {
				if stores[i].Has(id) {
					t.Errorf("Store %d contains form %s created by store %d", i, id, j)
				}
			}
		}
	}
}

func TestForm_FieldsMarshalInSchemaOrder(t *testing.T) {
	store := NewStore(RetainCurrent)
	f := store.CreateForm("default")

	data, err := json.Marshal(f.Fields)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got := string(data)
	order := []string{`"name"`, `"email"`, `"phone"`, `"message"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(got, key)
		if idx < 0 {
			t.Fatalf("Key %s missing from %s", key, got)
		}
		if idx < last {
			t.Errorf("Key %s out of schema order in %s", key, got)
		}
		last = idx
	}
}

func TestForm_CloneIsDeep(t *testing.T) {
	store := NewStore(RetainCurrent)
	store.CreateForm("default")
	f, err := store.UpdateField("name", "Alice")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	cp := f.Clone()
	cp.Fields["name"].Value = "Bob"
	cp.Status = StatusSubmitted

	if f.Fields["name"].Value != "Alice" || f.Status != StatusActive {
		t.Error("Clone must not share state with the original")
	}
}

func fillRequired(t *testing.T, store *Store) {
	t.Helper()
	if _, err := store.UpdateField("name", "Alice"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.UpdateField("email", "alice@example.com"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}
