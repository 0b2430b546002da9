// Package schema builds and validates the JSON schemas that describe tool
// parameters and structured model output. Schemas are invopop/jsonschema
// values so they can be reflected from Go structs or assembled by hand.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: true,
}

// Reflect creates a schema from a Go struct. Fields without omitempty are
// required; jsonschema struct tags (enum, pattern, description) are honored.
func Reflect(v any) *jsonschema.Schema {
	s := reflector.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}

// Field is one property of an object schema built with Object.
type Field struct {
	Name     string
	Schema   *jsonschema.Schema
	Required bool
}

// Required declares a mandatory property.
func Required(name string, s *jsonschema.Schema) Field {
	return Field{Name: name, Schema: s, Required: true}
}

// Optional declares an optional property.
func Optional(name string, s *jsonschema.Schema) Field {
	return Field{Name: name, Schema: s}
}

// Object assembles an object schema from fields, preserving their order.
func Object(fields ...Field) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties()}
	for _, f := range fields {
		s.Properties.Set(f.Name, f.Schema)
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// String returns a string schema.
func String(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

// Enum returns a string schema restricted to values.
func Enum(description string, values ...string) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{Type: "string", Description: description, Enum: enum}
}

// ToMap converts a schema into the generic map form expected by provider SDKs.
// A nil schema becomes an empty object schema.
func ToMap(s *jsonschema.Schema) (map[string]any, error) {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	if m["type"] == "object" {
		if _, ok := m["properties"]; !ok {
			m["properties"] = map[string]any{}
		}
	}
	return m, nil
}

// Validate checks value against s: types, required properties, nested
// objects, array items, enums and string patterns. Unknown properties are
// allowed. A nil schema accepts everything.
func Validate(s *jsonschema.Schema, value any) error {
	return validate(s, value, "")
}

func validate(s *jsonschema.Schema, value any, path string) error {
	if s == nil {
		return nil
	}

	if s.Type != "" && !isValidType(value, s.Type) {
		return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("expected type %s, got %T", s.Type, value)}
	}

	if len(s.Enum) > 0 && value != nil && !enumContains(s.Enum, value) {
		return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("value must be one of %v", s.Enum)}
	}

	if str, ok := value.(string); ok && s.Pattern != "" {
		re, err := compilePattern(s.Pattern)
		if err != nil {
			return &ValidationError{Field: path, Message: fmt.Sprintf("invalid pattern %q: %v", s.Pattern, err)}
		}
		if !re.MatchString(str) {
			return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("does not match pattern %s", s.Pattern)}
		}
	}

	switch v := value.(type) {
	case map[string]any:
		for _, req := range s.Required {
			if _, exists := v[req]; !exists {
				return &ValidationError{Field: join(path, req), Message: "required field is missing"}
			}
		}
		if s.Properties == nil {
			return nil
		}
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			field, exists := v[pair.Key]
			if !exists {
				continue
			}
			if err := validate(pair.Value, field, join(path, pair.Key)); err != nil {
				return err
			}
		}
	case []any:
		if s.Items == nil {
			return nil
		}
		for i, el := range v {
			if err := validate(s.Items, el, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}

	return nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

var patterns sync.Map // map[string]*regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patterns.Store(p, re)
	return re, nil
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if ef, ok := toFloat(e); ok {
			if vf, ok := toFloat(value); ok && ef == vf {
				return true
			}
			continue
		}
		if reflect.DeepEqual(e, value) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch strings.ToLower(expectedType) {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case "number":
		_, ok := toFloat(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
