package precision

import (
	"encoding/json"
	"testing"
)

func TestRaiseIsMonotonic(t *testing.T) {
	t.Parallel()

	c := NewContext()
	if got := c.Current(); got != DefaultPrecision {
		t.Fatalf("initial precision %d, want %d", got, DefaultPrecision)
	}
	if !c.Raise(40) {
		t.Fatal("Raise(40) should report a change")
	}
	if c.Raise(35) {
		t.Fatal("Raise(35) must not lower an already higher precision")
	}
	if got := c.Current(); got != 40 {
		t.Fatalf("precision %d, want 40", got)
	}
}

func TestOrderOfMagnitude(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value any
		want  int
	}{
		{"fractional step", 0.01, -2},
		{"unit step", 1.0, 0},
		{"large maximum", 10000.0, 4},
		{"non power of ten", 250.0, 3},
		{"json number", json.Number("0.001"), -3},
		{"absent collapses to one", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := map[string]any{"k": tc.value}
			if tc.value == nil {
				m = map[string]any{}
			}
			if got := orderOfMagnitude(m, "k"); got != tc.want {
				t.Fatalf("orderOfMagnitude(%v) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}

func TestConstrainedNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		schema map[string]any
		want   bool
	}{
		{"number with multipleOf", map[string]any{"type": "number", "multipleOf": 0.01}, true},
		{"number with minimum", map[string]any{"type": "number", "minimum": -100.0}, true},
		{"union type with maximum", map[string]any{"type": []any{"null", "number"}, "maximum": 5.0}, true},
		{"unconstrained number", map[string]any{"type": "number"}, false},
		{"constrained integer", map[string]any{"type": "integer", "multipleOf": 10.0}, false},
		{"no type", map[string]any{"multipleOf": 0.5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := constrainedNumber(tc.schema); got != tc.want {
				t.Fatalf("constrainedNumber = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestCalibrateWalksNestedSchema checks that constrained numeric fragments
// are found at any depth and that the context ends at the largest required
// precision regardless of declaration order.
func TestCalibrateWalksNestedSchema(t *testing.T) {
	t.Parallel()

	// multipleOf 5e-9 -> scale 9; maximum 2e22 -> digits 23; precision 32.
	wide := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"balance": map[string]any{
				"type":       "number",
				"multipleOf": 5e-9,
				"maximum":    2e22,
			},
		},
	}
	// multipleOf 0.005 -> scale 3; maximum 5e26 -> digits 27; precision 30.
	narrow := map[string]any{
		"type": "array",
		"items": []any{
			map[string]any{"type": "number", "multipleOf": 0.005, "maximum": 5e26},
		},
	}

	for _, order := range [][]any{{wide, narrow}, {narrow, wide}} {
		c := NewContext()
		for _, s := range order {
			Calibrate(c, s)
		}
		if got := c.Current(); got != 32 {
			t.Fatalf("calibrated precision %d, want 32", got)
		}
	}
}

func TestCalibrateIgnoresLowerRequirements(t *testing.T) {
	t.Parallel()

	c := NewContext()
	// multipleOf 0.01, maximum 10000 -> precision 6, below the default 28.
	Calibrate(c, map[string]any{"type": "number", "multipleOf": 0.01, "maximum": 10000.0})
	if got := c.Current(); got != DefaultPrecision {
		t.Fatalf("precision %d, want unchanged default %d", got, DefaultPrecision)
	}
}

func TestFormatFloatShortRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewContext()
	if got := c.FormatFloat(0.1); got != "0.1" {
		t.Fatalf("FormatFloat(0.1) = %q, want \"0.1\"", got)
	}
	if got := c.FormatFloat(12345.678); got != "12345.678" {
		t.Fatalf("FormatFloat(12345.678) = %q, want \"12345.678\"", got)
	}
}
