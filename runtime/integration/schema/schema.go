// Package schema compiles and evaluates the structural schemas attached to
// integration methods. Schemas are JSON Schema documents; Object offers a
// compact builder for the common "field name to type and constraint" form.
//
// The validator never applies defaults. An omitted required field is always
// reported as missing_field.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type (
	// Schema is a compiled, immutable schema. It is safe for concurrent use.
	Schema struct {
		name     string
		doc      []byte
		compiled *jsonschema.Schema
	}

	// ValidationError lists every problem found while validating a value.
	ValidationError struct {
		// Schema is the name of the schema that rejected the value.
		Schema string
		// Issues holds one entry per failing field and constraint.
		Issues []FieldIssue
	}

	// FieldIssue is one validation problem. Field is the dotted path of the
	// offending value, empty for the document root.
	FieldIssue struct {
		Field      string
		Constraint string
		Message    string
	}
)

// Constraint kinds reported in FieldIssue.Constraint.
const (
	MissingField     = "missing_field"
	InvalidFieldType = "invalid_field_type"
	InvalidEnumValue = "invalid_enum_value"
	InvalidFormat    = "invalid_format"
	InvalidPattern   = "invalid_pattern"
	InvalidRange     = "invalid_range"
	InvalidLength    = "invalid_length"
	UnknownField     = "unknown_field"
)

var printer = message.NewPrinter(language.English)

// Compile parses and compiles a JSON Schema document. name identifies the
// schema in errors.
func Compile(name string, doc []byte) (*Schema, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, fmt.Errorf("schema %q: empty document", name)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema %q: unmarshal: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	c.AssertFormat()
	loc := resourceName(name)
	if err := c.AddResource(loc, parsed); err != nil {
		return nil, fmt.Errorf("schema %q: add resource: %w", name, err)
	}
	compiled, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("schema %q: compile: %w", name, err)
	}
	return &Schema{name: name, doc: append([]byte(nil), doc...), compiled: compiled}, nil
}

// MustCompile is like Compile but panics on error. It is intended for
// package-level method catalogs.
func MustCompile(name string, doc []byte) *Schema {
	s, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Any returns a schema that accepts every JSON value.
func Any() *Schema {
	return MustCompile("any", []byte(`{}`))
}

// Name returns the name the schema was compiled with.
func (s *Schema) Name() string { return s.name }

// JSON returns a copy of the schema document.
func (s *Schema) JSON() []byte { return append([]byte(nil), s.doc...) }

// Validate normalizes v into plain JSON data and validates it. The returned
// value is the normalized form: objects become map[string]any, arrays []any
// and numbers json.Number. Validation failures are *ValidationError.
func (s *Schema) Validate(v any) (any, error) {
	doc, err := normalize(v)
	if err != nil {
		return nil, &ValidationError{
			Schema: s.name,
			Issues: []FieldIssue{{Constraint: InvalidFieldType, Message: err.Error()}},
		}
	}
	if err := s.compiled.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return nil, fmt.Errorf("schema %q: %w", s.name, err)
		}
		return nil, &ValidationError{Schema: s.name, Issues: collectIssues(verr)}
	}
	return doc, nil
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		field := is.Field
		if field == "" {
			field = "(root)"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, is.Message))
	}
	return fmt.Sprintf("schema %q: %s", e.Schema, strings.Join(parts, "; "))
}

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON encodable: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

func resourceName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("schema")
	}
	return "mem://schemas/" + b.String() + ".json"
}

// collectIssues flattens the jsonschema error tree into leaf issues.
func collectIssues(root *jsonschema.ValidationError) []FieldIssue {
	var issues []FieldIssue
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		issues = append(issues, leafIssues(e)...)
	}
	walk(root)
	if len(issues) == 0 {
		issues = append(issues, FieldIssue{Constraint: InvalidFieldType, Message: root.Error()})
	}
	return issues
}

func leafIssues(e *jsonschema.ValidationError) []FieldIssue {
	at := strings.Join(e.InstanceLocation, ".")
	msg := e.ErrorKind.LocalizedString(printer)
	switch k := e.ErrorKind.(type) {
	case *kind.Required:
		out := make([]FieldIssue, 0, len(k.Missing))
		for _, name := range k.Missing {
			out = append(out, FieldIssue{
				Field:      join(at, name),
				Constraint: MissingField,
				Message:    fmt.Sprintf("missing required field %q", name),
			})
		}
		return out
	case *kind.AdditionalProperties:
		out := make([]FieldIssue, 0, len(k.Properties))
		for _, name := range k.Properties {
			out = append(out, FieldIssue{
				Field:      join(at, name),
				Constraint: UnknownField,
				Message:    fmt.Sprintf("unknown field %q", name),
			})
		}
		return out
	case *kind.Type:
		return []FieldIssue{{Field: at, Constraint: InvalidFieldType, Message: msg}}
	case *kind.Enum, *kind.Const:
		return []FieldIssue{{Field: at, Constraint: InvalidEnumValue, Message: msg}}
	case *kind.Format:
		return []FieldIssue{{Field: at, Constraint: InvalidFormat, Message: msg}}
	case *kind.Pattern:
		return []FieldIssue{{Field: at, Constraint: InvalidPattern, Message: msg}}
	case *kind.Minimum, *kind.Maximum, *kind.ExclusiveMinimum, *kind.ExclusiveMaximum, *kind.MultipleOf:
		return []FieldIssue{{Field: at, Constraint: InvalidRange, Message: msg}}
	case *kind.MinLength, *kind.MaxLength, *kind.MinItems, *kind.MaxItems,
		*kind.MinProperties, *kind.MaxProperties:
		return []FieldIssue{{Field: at, Constraint: InvalidLength, Message: msg}}
	case *kind.FalseSchema:
		return []FieldIssue{{Field: at, Constraint: UnknownField, Message: "field is not allowed"}}
	default:
		return []FieldIssue{{Field: at, Constraint: InvalidFieldType, Message: msg}}
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
