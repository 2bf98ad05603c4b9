package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func widgetSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Object(
		String("id", Required(), MinLength(1)),
		String("name"),
		String("status", Enum("active", "archived")),
		Integer("limit", Minimum(1), Maximum(100)),
		String("sku", Pattern(`^[A-Z]{3}-[0-9]+$`)),
		Array("tags", String(""), MaxLength(2)),
		Map("owner", Fields(String("email", Required(), Format("email"))), StrictFields()),
	).Named("widgets.get.input").Build()
	require.NoError(t, err)
	return s
}

func TestValidateAcceptsConformingValue(t *testing.T) {
	s := widgetSchema(t)
	out, err := s.Validate(map[string]any{
		"id":     "w1",
		"status": "active",
		"limit":  10,
		"sku":    "ABC-12",
		"tags":   []string{"a"},
		"owner":  map[string]any{"email": "ops@example.com"},
		"extra":  true,
	})
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "w1", m["id"])
	require.Equal(t, json.Number("10"), m["limit"])
}

func TestValidateReportsConstraintKinds(t *testing.T) {
	s := widgetSchema(t)
	cases := []struct {
		name       string
		value      map[string]any
		field      string
		constraint string
	}{
		{"missing", map[string]any{}, "id", MissingField},
		{"type", map[string]any{"id": 7}, "id", InvalidFieldType},
		{"enum", map[string]any{"id": "w1", "status": "gone"}, "status", InvalidEnumValue},
		{"pattern", map[string]any{"id": "w1", "sku": "abc"}, "sku", InvalidPattern},
		{"range", map[string]any{"id": "w1", "limit": 0}, "limit", InvalidRange},
		{"length", map[string]any{"id": ""}, "id", InvalidLength},
		{"items", map[string]any{"id": "w1", "tags": []string{"a", "b", "c"}}, "tags", InvalidLength},
		{"format", map[string]any{"id": "w1", "owner": map[string]any{"email": "nope"}}, "owner.email", InvalidFormat},
		{"unknown nested", map[string]any{"id": "w1", "owner": map[string]any{"email": "a@b.co", "x": 1}}, "owner.x", UnknownField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Validate(tc.value)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, "widgets.get.input", verr.Schema)
			require.Contains(t, verr.Issues, findIssue(t, verr.Issues, tc.field, tc.constraint))
		})
	}
}

func findIssue(t *testing.T, issues []FieldIssue, field, constraint string) FieldIssue {
	t.Helper()
	for _, is := range issues {
		if is.Field == field && is.Constraint == constraint {
			require.NotEmpty(t, is.Message)
			return is
		}
	}
	require.Failf(t, "issue not found", "want %s/%s in %+v", field, constraint, issues)
	return FieldIssue{}
}

func TestStrictObjectRejectsUnknownFields(t *testing.T) {
	s := Object(String("id", Required())).Strict().MustBuild()
	_, err := s.Validate(map[string]any{"id": "w1", "color": "red"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "color", verr.Issues[0].Field)
	require.Equal(t, UnknownField, verr.Issues[0].Constraint)
}

func TestValidateNeverAppliesDefaults(t *testing.T) {
	s := MustCompile("defaults", []byte(`{
		"type": "object",
		"properties": {"id": {"type": "string", "default": "w0"}},
		"required": ["id"]
	}`))
	_, err := s.Validate(map[string]any{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, MissingField, verr.Issues[0].Constraint)

	out, err := Object(String("id")).MustBuild().Validate(map[string]any{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestValidateNormalizesStructs(t *testing.T) {
	type widget struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	s := Object(String("id", Required()), String("name", Required())).MustBuild()
	out, err := s.Validate(widget{ID: "w1", Name: "Widget"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": "w1", "name": "Widget"}, out)
}

func TestValidateRejectsUnencodableValue(t *testing.T) {
	_, err := Any().Validate(map[string]any{"ch": make(chan int)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, InvalidFieldType, verr.Issues[0].Constraint)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile("empty", nil)
	require.Error(t, err)
	_, err = Compile("bad json", []byte(`{`))
	require.Error(t, err)
	_, err = Object(String("sku", Pattern(`([`))).Build()
	require.Error(t, err)
	require.Panics(t, func() { MustCompile("bad", []byte(`{"type": 3}`)) })
}

func TestSchemaJSONIsCopy(t *testing.T) {
	s := Object(String("id", Required())).MustBuild()
	doc := s.JSON()
	doc[0] = 'x'
	require.True(t, json.Valid(s.JSON()))
	require.Equal(t, "object", s.Name())
}
