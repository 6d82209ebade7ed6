// Package schema models a cell's schema artifact and validates payloads
// against it.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

// Document is the schema artifact published with a cell version. Each action
// may carry a JSON Schema for its request and response objects.
type Document struct {
	Version string                  `json:"version,omitempty"`
	Actions map[string]ActionSchema `json:"actions"`
}

// ActionSchema holds the request and response schemas of one action.
type ActionSchema struct {
	Description string          `json:"description,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
}

// Parse decodes a schema artifact. An empty artifact is an empty document.
func Parse(data []byte) (*Document, error) {
	doc := &Document{Actions: map[string]ActionSchema{}}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.WrapInvalid(err, "schema", "Parse", "decode schema document")
	}
	if doc.Actions == nil {
		doc.Actions = map[string]ActionSchema{}
	}
	return doc, nil
}

// Action returns the schemas declared for name.
func (d *Document) Action(name string) (ActionSchema, bool) {
	if d == nil {
		return ActionSchema{}, false
	}
	a, ok := d.Actions[name]
	return a, ok
}

// Validator checks a decoded JSON value against a JSON Schema.
type Validator interface {
	Validate(subject string, schema json.RawMessage, value any) error
}

// NopValidator accepts everything.
type NopValidator struct{}

// Validate implements Validator.
func (NopValidator) Validate(string, json.RawMessage, any) error { return nil }

// JSONSchemaValidator validates with gojsonschema. Compiled schemas are
// cached by their text. Safe for concurrent use.
type JSONSchemaValidator struct {
	compiled sync.Map // string -> *gojsonschema.Schema
}

// NewJSONSchemaValidator returns an empty validator.
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{}
}

// Validate returns a ValidationError naming the first failing field. An
// empty schema accepts any value.
func (v *JSONSchemaValidator) Validate(subject string, raw json.RawMessage, value any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	compiled, err := v.compile(raw)
	if err != nil {
		return err
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return errors.WrapInvalid(err, "JSONSchemaValidator", "Validate", "load document")
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return &errors.ValidationError{
		Subject: subject,
		Field:   first.Field(),
		Reason:  strings.Join(reasons, "; "),
	}
}

func (v *JSONSchemaValidator) compile(raw json.RawMessage) (*gojsonschema.Schema, error) {
	key := string(raw)
	if s, ok := v.compiled.Load(key); ok {
		return s.(*gojsonschema.Schema), nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.WrapInvalid(err, "JSONSchemaValidator", "compile", "compile schema")
	}
	actual, _ := v.compiled.LoadOrStore(key, s)
	return actual.(*gojsonschema.Schema), nil
}
