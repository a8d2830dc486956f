// Package precision tracks the decimal precision required by the numeric
// constraints of the schemas seen so far.
//
// A schema may constrain a "number" field with multipleOf, minimum, or
// maximum. Validating or serializing such a field with too few significant
// digits silently truncates values, so before any record of a stream is
// processed the stream's schema is walked and the shared Context is raised to
// the precision its constraints demand.
//
// The Context is an explicit value threaded through the pipeline instead of
// ambient process state, so independent pipeline instances in one process do
// not interfere. Precision is monotonically non-decreasing: it can be raised,
// never lowered.
package precision

import (
	"encoding/json"
	"math"
	"strconv"
)

// DefaultPrecision is the number of significant digits assumed before any
// schema raises it.
const DefaultPrecision = 28

// Context holds the current required decimal precision.
type Context struct {
	prec int
}

// NewContext returns a Context at DefaultPrecision.
func NewContext() *Context {
	return &Context{prec: DefaultPrecision}
}

// Current reports the precision in effect.
func (c *Context) Current() int {
	return c.prec
}

// Raise lifts the precision to at least p and reports whether it changed.
// Lower values are ignored.
func (c *Context) Raise(p int) bool {
	if p <= c.prec {
		return false
	}
	c.prec = p
	return true
}

// FormatFloat renders f as the shortest decimal string that round-trips,
// capped at the context's significant digits. Used when a binary float must
// be converted to a decimal form without inventing digits the value never
// had, while still bounding it to the calibrated precision.
func (c *Context) FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if significantDigits(s) > c.prec {
		s = strconv.FormatFloat(f, 'g', c.prec, 64)
	}
	return s
}

// significantDigits counts the mantissa digits of a formatted float,
// ignoring sign, decimal point, exponent, and leading zeros.
func significantDigits(s string) int {
	n := 0
	leading := true
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == 'e' || ch == 'E' {
			break
		}
		if ch < '0' || ch > '9' {
			continue
		}
		if ch == '0' && leading {
			continue
		}
		leading = false
		n++
	}
	return n
}

// Calibrate walks a decoded schema document and raises c to the precision
// required by every constrained numeric fragment it contains. It must run
// once per SCHEMA message, before validating any of that stream's records.
func Calibrate(c *Context, schema any) {
	switch v := schema.(type) {
	case []any:
		for _, child := range v {
			Calibrate(c, child)
		}
	case map[string]any:
		if constrainedNumber(v) {
			scale := -orderOfMagnitude(v, "multipleOf")
			digits := max(orderOfMagnitude(v, "minimum"), orderOfMagnitude(v, "maximum"))
			c.Raise(digits + scale)
			return
		}
		for _, child := range v {
			Calibrate(c, child)
		}
	}
}

// constrainedNumber reports whether the fragment declares a "number" type
// with at least one precision-relevant constraint.
func constrainedNumber(schema map[string]any) bool {
	switch t := schema["type"].(type) {
	case string:
		if t != "number" {
			return false
		}
	case []any:
		found := false
		for _, e := range t {
			if s, ok := e.(string); ok && s == "number" {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	default:
		return false
	}
	if _, ok := schema["multipleOf"]; ok {
		return true
	}
	_, hasMin := schema["minimum"]
	_, hasMax := schema["maximum"]
	return hasMin || hasMax
}

// orderOfMagnitude computes the log10-derived exponent of the named
// constraint: ceil(log10(v)) for v >= 1 and floor(log10(v)) for v < 1, which
// gives the count of integer digits above the decimal point (negative for
// purely fractional steps). Missing or unusable values count as 1 (exponent 0).
func orderOfMagnitude(schema map[string]any, key string) int {
	f := numericValue(schema[key])
	if f == 0 {
		return 0
	}
	v := math.Log10(math.Abs(f))
	// Log10 of an exact power of ten can land an ulp off the integer; snap
	// before floor/ceil so 0.01 yields -2, not -3.
	if r := math.Round(v); math.Abs(v-r) < 1e-9 {
		v = r
	}
	if v < 0 {
		return int(math.Floor(v))
	}
	return int(math.Ceil(v))
}

// numericValue extracts a float from the JSON-decoded constraint value.
// Absent or non-numeric values collapse to 1 so they contribute exponent 0.
func numericValue(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 1
	case float64:
		return v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 1
		}
		return f
	default:
		return 1
	}
}
