package dispatch

import (
	"fmt"
	"log"
	"strings"

	"formdesk/internal/form"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the uniform result wrapper for every tool call. It is
// serialized flat onto the wire as the reply to a tool_call message.
type Envelope struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Form    *form.Form `json:"form,omitempty"`
	Errors  []string   `json:"errors,omitempty"`
}

// toolKind is the closed enumeration of recognized tools. Dispatch resolves
// the wire name to a kind once; unknown names take a single default path
// instead of an open-ended string comparison chain.
type toolKind int

const (
	toolOpenForm toolKind = iota
	toolUpdateFormField
	toolSubmitForm
)

var toolKinds = map[string]toolKind{
	"open_form":         toolOpenForm,
	"update_form_field": toolUpdateFormField,
	"submit_form":       toolSubmitForm,
}

// handlerFunc executes one tool against the store. The second result
// reports whether the call reached the store and a form_update broadcast is
// warranted.
type handlerFunc func(args map[string]interface{}) (Envelope, bool)

// Dispatcher maps tool calls onto a session's form store and normalizes
// every outcome into an Envelope. It never lets a fault escape to the
// transport layer.
type Dispatcher struct {
	store    *form.Store
	handlers map[toolKind]handlerFunc
}

// NewDispatcher creates a dispatcher bound to one session's store.
func NewDispatcher(store *form.Store) *Dispatcher {
	d := &Dispatcher{store: store}
	d.handlers = map[toolKind]handlerFunc{
		toolOpenForm:        d.openForm,
		toolUpdateFormField: d.updateFormField,
		toolSubmitForm:      d.submitForm,
	}
	return d
}

// Dispatch routes a named tool call with its argument mapping. The returned
// mutated flag is true whenever the call reached the store: open_form
// always, update_form_field/submit_form except missing-argument rejections.
// Unknown tools never mutate.
//
// Any internal failure, including a panic out of a handler, is converted to
// an error envelope here.
func (d *Dispatcher) Dispatch(tool string, args map[string]interface{}) (env Envelope, mutated bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Tool call panic recovered: tool=%s: %v", tool, r)
			env = Envelope{Status: StatusError, Message: fmt.Sprintf("internal error: %v", r)}
			mutated = false
		}
	}()

	if args == nil {
		args = map[string]interface{}{}
	}

	kind, ok := toolKinds[tool]
	if !ok {
		return Envelope{Status: StatusError, Message: "Unknown tool: " + tool}, false
	}
	return d.handlers[kind](args)
}

// openForm handles the open_form tool. form_type is optional and defaults
// to "default". Always succeeds.
func (d *Dispatcher) openForm(args map[string]interface{}) (Envelope, bool) {
	formType, _ := args["form_type"].(string)
	f := d.store.CreateForm(formType)
	return Envelope{
		Status:  StatusSuccess,
		Message: "Form opened successfully. You can now provide your details.",
		Form:    f,
	}, true
}

// updateFormField handles the update_form_field tool. Both field_name and
// value are required; value may be the empty string but must be present.
// Missing arguments are rejected before the store is touched.
func (d *Dispatcher) updateFormField(args map[string]interface{}) (Envelope, bool) {
	fieldName, _ := args["field_name"].(string)
	rawValue, present := args["value"]
	value, isString := rawValue.(string)

	if fieldName == "" || !present || !isString {
		return Envelope{Status: StatusError, Message: "Field name and value are required"}, false
	}

	f, err := d.store.UpdateField(fieldName, value)
	if err != nil {
		return Envelope{Status: StatusError, Message: err.Error()}, true
	}
	return Envelope{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Updated %s field successfully", fieldName),
		Form:    f,
	}, true
}

// submitForm handles the submit_form tool. Validation failures carry the
// full ordered violation list; the connection-facing message joins them.
func (d *Dispatcher) submitForm(args map[string]interface{}) (Envelope, bool) {
	f, err := d.store.Submit()
	if err != nil {
		if ve, ok := err.(*form.ValidationError); ok {
			return Envelope{
				Status:  StatusError,
				Message: "Form validation failed: " + strings.Join(ve.Violations, ", "),
				Errors:  ve.Violations,
			}, true
		}
		return Envelope{Status: StatusError, Message: err.Error()}, true
	}
	return Envelope{
		Status:  StatusSuccess,
		Message: "Form submitted successfully!",
		Form:    f,
	}, true
}
