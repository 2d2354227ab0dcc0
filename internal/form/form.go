package form

import (
	"encoding/json"
	"time"
)

// Field kinds supported by the fixed form schema.
const (
	KindText     = "text"
	KindEmail    = "email"
	KindTel      = "tel"
	KindTextarea = "textarea"
)

// Form status values. A form moves from active to submitted exactly once
// and never back.
const (
	StatusActive    = "active"
	StatusSubmitted = "submitted"
)

// Field is a single form field. Required and Kind are fixed at creation;
// only Value is mutable.
type Field struct {
	Value    string `json:"value"`
	Required bool   `json:"required"`
	Kind     string `json:"type"`
}

// schemaField defines one entry of the fixed form schema.
type schemaField struct {
	Name     string
	Required bool
	Kind     string
}

// schema is the fixed field layout of every form, in schema order.
// The key set of Form.Fields never grows or shrinks beyond these entries.
var schema = []schemaField{
	{Name: "name", Required: true, Kind: KindText},
	{Name: "email", Required: true, Kind: KindEmail},
	{Name: "phone", Required: false, Kind: KindTel},
	{Name: "message", Required: false, Kind: KindTextarea},
}

// FieldMap holds a form's fields keyed by name. It marshals in schema
// order rather than Go's sorted map order so clients see fields in the
// order they should be presented.
type FieldMap map[string]*Field

// MarshalJSON emits fields in schema order.
func (m FieldMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	first := true
	for _, sf := range schema {
		f, ok := m[sf.Name]
		if !ok {
			continue
		}
		if !first {
			buf = append(buf, ',')
		}
		first = false
		key, err := json.Marshal(sf.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Form represents one in-progress document owned by a session's store.
type Form struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Fields      FieldMap   `json:"fields"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// newForm builds a form with the fixed schema and empty values.
func newForm(id, formType string, now time.Time) *Form {
	fields := make(FieldMap, len(schema))
	for _, sf := range schema {
		fields[sf.Name] = &Field{Value: "", Required: sf.Required, Kind: sf.Kind}
	}
	return &Form{
		ID:        id,
		Type:      formType,
		Fields:    fields,
		Status:    StatusActive,
		CreatedAt: now,
	}
}

// Clone returns a deep copy of the form. Store operations hand out clones
// so callers can serialize them without racing the owning session.
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Fields = make(FieldMap, len(f.Fields))
	for name, field := range f.Fields {
		fc := *field
		cp.Fields[name] = &fc
	}
	if f.UpdatedAt != nil {
		t := *f.UpdatedAt
		cp.UpdatedAt = &t
	}
	if f.SubmittedAt != nil {
		t := *f.SubmittedAt
		cp.SubmittedAt = &t
	}
	return &cp
}

// FieldNames returns the schema field names in schema order.
func FieldNames() []string {
	names := make([]string, len(schema))
	for i, sf := range schema {
		names[i] = sf.Name
	}
	return names
}
