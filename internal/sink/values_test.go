package sink

import (
	"encoding/json"
	"testing"

	"github.com/siilats/target-postgres/internal/precision"
)

func TestFieldStringCanonicalizesNumbers(t *testing.T) {
	t.Parallel()

	pc := precision.NewContext()
	cases := []struct {
		in   any
		want string
	}{
		{json.Number("1"), "1"},
		{json.Number("1.0"), "1"},
		{json.Number("1.50"), "1.5"},
		{json.Number("0.07"), "0.07"},
		{0.1, "0.1"},
		{true, "true"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		got, isNull, err := FieldString(tc.in, pc)
		if err != nil {
			t.Fatalf("FieldString(%v) error: %v", tc.in, err)
		}
		if isNull {
			t.Fatalf("FieldString(%v) reported null", tc.in)
		}
		if got != tc.want {
			t.Fatalf("FieldString(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if _, isNull, _ := FieldString(nil, pc); !isNull {
		t.Fatal("nil must report null")
	}
}

func TestFieldStringNestedValuesAsJSON(t *testing.T) {
	t.Parallel()

	pc := precision.NewContext()
	got, _, err := FieldString(map[string]any{"a": json.Number("1")}, pc)
	if err != nil {
		t.Fatalf("FieldString error: %v", err)
	}
	if got != `{"a":1}` {
		t.Fatalf("nested value %q, want {\"a\":1}", got)
	}
}

// TestKeyStringStableAcrossNumberSpellings checks the determinism contract:
// logically equal keys yield equal strings no matter how the JSON spelled
// the number.
func TestKeyStringStableAcrossNumberSpellings(t *testing.T) {
	t.Parallel()

	pc := precision.NewContext()
	keys := []string{"id", "region"}

	a, err := KeyString(map[string]any{"id": json.Number("1"), "region": "eu"}, keys, pc)
	if err != nil {
		t.Fatalf("KeyString error: %v", err)
	}
	b, err := KeyString(map[string]any{"id": json.Number("1.0"), "region": "eu"}, keys, pc)
	if err != nil {
		t.Fatalf("KeyString error: %v", err)
	}
	if a != b {
		t.Fatalf("key strings differ: %q vs %q", a, b)
	}
	if a != "1,eu" {
		t.Fatalf("key string %q, want \"1,eu\"", a)
	}
}

func TestKeyStringEmptyWithoutKeyProperties(t *testing.T) {
	t.Parallel()

	got, err := KeyString(map[string]any{"id": json.Number("1")}, nil, precision.NewContext())
	if err != nil {
		t.Fatalf("KeyString error: %v", err)
	}
	if got != "" {
		t.Fatalf("key string %q, want empty", got)
	}
}

func TestKeyStringMissingProperty(t *testing.T) {
	t.Parallel()

	if _, err := KeyString(map[string]any{}, []string{"id"}, precision.NewContext()); err == nil {
		t.Fatal("expected error for record missing its key property")
	}
}

func TestCSVLine(t *testing.T) {
	t.Parallel()

	pc := precision.NewContext()
	cols := []Column{
		{Name: "balance", Type: "number"},
		{Name: "id", Type: "integer"},
		{Name: "name", Type: "string"},
		{Name: "note", Type: "string"},
	}

	rec := map[string]any{
		"balance": json.Number("10.50"),
		"id":      json.Number("7"),
		"name":    `quo"ted`,
		// note absent -> NULL
	}
	line, err := CSVLine(rec, cols, pc)
	if err != nil {
		t.Fatalf("CSVLine error: %v", err)
	}
	want := "10.5,7,\"quo\"\"ted\",\n"
	if string(line) != want {
		t.Fatalf("line %q, want %q", line, want)
	}
}

// TestCSVLineEmptyStringVsNull checks that an empty string stays
// distinguishable from NULL under COPY's NULL '' convention.
func TestCSVLineEmptyStringVsNull(t *testing.T) {
	t.Parallel()

	pc := precision.NewContext()
	cols := []Column{
		{Name: "a", Type: "string"},
		{Name: "b", Type: "string"},
	}
	line, err := CSVLine(map[string]any{"a": ""}, cols, pc)
	if err != nil {
		t.Fatalf("CSVLine error: %v", err)
	}
	if string(line) != "\"\",\n" {
		t.Fatalf("line %q, want %q", line, "\"\",\n")
	}
}
