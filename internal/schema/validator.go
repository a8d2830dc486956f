// Package schema compiles a stream's JSON schema declaration into a reusable,
// format-aware validator.
//
// Validation is exact for numeric constraints: record values arrive decoded
// as json.Number and are checked against multipleOf/minimum/maximum using
// rational arithmetic inside the validator, so a value like 0.3 with
// multipleOf 0.1 validates correctly instead of failing on binary float
// rounding. Formats (date-time, email, ...) are asserted, not just type shape.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/siilats/target-postgres/internal/precision"
)

// Validator checks records of one stream against the stream's last declared
// schema.
type Validator struct {
	stream   string
	compiled *jsonschema.Schema
	pc       *precision.Context
}

// Compile builds a Validator for the given raw schema document. The schema is
// compiled under JSON Schema draft 4 with format assertions enabled, matching
// the dialect the upstream taps emit.
func Compile(stream string, doc json.RawMessage, pc *precision.Context) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft4
	c.AssertFormat = true

	url := "inline://record.json"
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("schema for stream %q: %w", stream, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for stream %q: %w", stream, err)
	}
	return &Validator{stream: stream, compiled: compiled, pc: pc}, nil
}

// Validate checks one record against the compiled schema. Numeric leaves are
// normalized to exact decimal form first. A non-conforming record yields a
// *ValidationError.
func (v *Validator) Validate(record map[string]any) error {
	if err := v.compiled.Validate(NormalizeNumbers(record, v.pc)); err != nil {
		return &ValidationError{Stream: v.stream, Err: err}
	}
	return nil
}

// NormalizeNumbers walks a decoded JSON value and converts every binary
// float into a json.Number rendered with the calibrated precision. Values
// that were decoded with UseNumber are already exact and pass through
// untouched.
func NormalizeNumbers(value any, pc *precision.Context) any {
	switch v := value.(type) {
	case float64:
		return json.Number(pc.FormatFloat(v))
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = NormalizeNumbers(child, pc)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = NormalizeNumbers(child, pc)
		}
		return out
	default:
		return value
	}
}
