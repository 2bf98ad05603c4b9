package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

type (
	// Field describes one named property of an object schema.
	Field struct {
		name     string
		required bool
		prop     map[string]any
		fields   []Field
		strict   bool
	}

	// Modifier adjusts a Field.
	Modifier func(*Field)
)

// ObjectSchema is a structural object schema under construction. Call Build
// or MustBuild to compile it.
type ObjectSchema struct {
	name   string
	fields []Field
	strict bool
}

// Object starts a structural object schema from fields.
func Object(fields ...Field) *ObjectSchema {
	return &ObjectSchema{name: "object", fields: fields}
}

// Named sets the schema name reported in validation errors.
func (o *ObjectSchema) Named(name string) *ObjectSchema {
	o.name = name
	return o
}

// Strict rejects properties that are not declared.
func (o *ObjectSchema) Strict() *ObjectSchema {
	o.strict = true
	return o
}

// Build renders the JSON Schema document and compiles it.
func (o *ObjectSchema) Build() (*Schema, error) {
	doc, err := json.Marshal(objectDoc(o.fields, o.strict))
	if err != nil {
		return nil, fmt.Errorf("schema %q: render: %w", o.name, err)
	}
	return Compile(o.name, doc)
}

// MustBuild is like Build but panics on error, for example when a Pattern
// modifier holds an invalid regular expression.
func (o *ObjectSchema) MustBuild() *Schema {
	s, err := o.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// String declares a string field.
func String(name string, mods ...Modifier) Field { return newField(name, "string", mods) }

// Integer declares an integer field.
func Integer(name string, mods ...Modifier) Field { return newField(name, "integer", mods) }

// Number declares a numeric field.
func Number(name string, mods ...Modifier) Field { return newField(name, "number", mods) }

// Boolean declares a boolean field.
func Boolean(name string, mods ...Modifier) Field { return newField(name, "boolean", mods) }

// Array declares an array field whose elements match items. The name of items
// is ignored.
func Array(name string, items Field, mods ...Modifier) Field {
	f := newField(name, "array", nil)
	f.prop["items"] = items.render()
	for _, m := range mods {
		m(&f)
	}
	return f
}

// Map declares a nested object field. Without Fields it accepts any object.
func Map(name string, mods ...Modifier) Field { return newField(name, "object", mods) }

// Required marks the field as mandatory in its parent object.
func Required() Modifier {
	return func(f *Field) { f.required = true }
}

// Description documents the field.
func Description(text string) Modifier {
	return func(f *Field) { f.prop["description"] = text }
}

// Enum restricts the field to values.
func Enum(values ...any) Modifier {
	return func(f *Field) { f.prop["enum"] = values }
}

// MinLength sets the minimum string length, or the minimum item count for
// arrays.
func MinLength(n int) Modifier {
	return func(f *Field) {
		if f.prop["type"] == "array" {
			f.prop["minItems"] = n
			return
		}
		f.prop["minLength"] = n
	}
}

// MaxLength sets the maximum string length, or the maximum item count for
// arrays.
func MaxLength(n int) Modifier {
	return func(f *Field) {
		if f.prop["type"] == "array" {
			f.prop["maxItems"] = n
			return
		}
		f.prop["maxLength"] = n
	}
}

// Pattern requires string values to match the regular expression re.
func Pattern(re string) Modifier {
	return func(f *Field) { f.prop["pattern"] = re }
}

// Format requires string values to satisfy a JSON Schema format such as
// "date-time", "email" or "uri".
func Format(format string) Modifier {
	return func(f *Field) { f.prop["format"] = format }
}

// Minimum sets the inclusive lower bound of a numeric field.
func Minimum(n float64) Modifier {
	return func(f *Field) { f.prop["minimum"] = n }
}

// Maximum sets the inclusive upper bound of a numeric field.
func Maximum(n float64) Modifier {
	return func(f *Field) { f.prop["maximum"] = n }
}

// Nullable additionally accepts null.
func Nullable() Modifier {
	return func(f *Field) {
		if t, ok := f.prop["type"].(string); ok {
			f.prop["type"] = []string{t, "null"}
		}
	}
}

// Fields declares the properties of a Map field.
func Fields(fields ...Field) Modifier {
	return func(f *Field) { f.fields = append(f.fields, fields...) }
}

// StrictFields rejects undeclared properties of a Map field.
func StrictFields() Modifier {
	return func(f *Field) { f.strict = true }
}

// Name returns the property name.
func (f Field) Name() string { return f.name }

// IsRequired reports whether the field is mandatory.
func (f Field) IsRequired() bool { return f.required }

func newField(name, typ string, mods []Modifier) Field {
	f := Field{name: name, prop: map[string]any{"type": typ}}
	for _, m := range mods {
		m(&f)
	}
	return f
}

func (f Field) render() map[string]any {
	out := make(map[string]any, len(f.prop)+3)
	for k, v := range f.prop {
		out[k] = v
	}
	if len(f.fields) > 0 || f.strict {
		for k, v := range objectDoc(f.fields, f.strict) {
			if k == "type" {
				continue
			}
			out[k] = v
		}
	}
	return out
}

func objectDoc(fields []Field, strict bool) map[string]any {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		name := strings.TrimSpace(f.name)
		props[name] = f.render()
		if f.required {
			required = append(required, name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	if strict {
		doc["additionalProperties"] = false
	}
	return doc
}
