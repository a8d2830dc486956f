package sink

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Column describes one destination column derived from a stream's schema.
type Column struct {
	Name string
	// Type is the primary JSON type of the property ("string", "integer",
	// "number", "boolean", "object", "array"), with "null" stripped from
	// union types.
	Type string
	// Format is the JSON-schema format annotation, if any ("date-time", ...).
	Format string
	// Nullable is true when the property's type union includes "null".
	Nullable bool
}

// propertySpec mirrors the fragment of a JSON schema property the sinks care
// about.
type propertySpec struct {
	Type   any    `json:"type"`
	Format string `json:"format"`
}

// Columns derives the ordered destination columns from a raw schema document.
// Properties are sorted by name so the column order, the staged line layout,
// and the destination table stay aligned across runs.
func Columns(doc json.RawMessage) ([]Column, error) {
	var schema struct {
		Properties map[string]propertySpec `json:"properties"`
	}
	if err := json.Unmarshal(doc, &schema); err != nil {
		return nil, fmt.Errorf("decode schema properties: %w", err)
	}
	if len(schema.Properties) == 0 {
		return nil, fmt.Errorf("schema declares no properties")
	}

	cols := make([]Column, 0, len(schema.Properties))
	for name, prop := range schema.Properties {
		col := Column{Name: name, Format: prop.Format}
		col.Type, col.Nullable = primaryType(prop.Type)
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols, nil
}

// primaryType collapses a JSON-schema type declaration (string or list) to
// its first non-null type and whether null is allowed.
func primaryType(t any) (string, bool) {
	switch v := t.(type) {
	case string:
		return v, false
	case []any:
		typ := ""
		nullable := false
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				continue
			}
			if s == "null" {
				nullable = true
				continue
			}
			if typ == "" {
				typ = s
			}
		}
		if typ == "" {
			typ = "string"
		}
		return typ, nullable
	default:
		return "string", true
	}
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// TableName sanitizes a stream name into a destination table name: lowercased
// with every non-alphanumeric run collapsed to a single underscore.
func TableName(stream string) string {
	var b strings.Builder
	b.Grow(len(stream))
	prevUnderscore := false
	for _, r := range strings.ToLower(stream) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
