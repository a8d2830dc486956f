package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/siilats/target-postgres/internal/precision"
)

// FieldString renders one record value as the text form staged for bulk
// loading. The second return is true when the value is absent/null.
//
// Numbers are canonicalized through decimal so that logically equal values
// share one spelling ("1.0" and "1" both render as "1"); binary floats are
// first formatted with the calibrated precision so constrained digits are
// not lost.
func FieldString(v any, pc *precision.Context) (string, bool, error) {
	switch t := v.(type) {
	case nil:
		return "", true, nil
	case string:
		return t, false, nil
	case bool:
		return strconv.FormatBool(t), false, nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return "", false, fmt.Errorf("bad numeric value %q: %w", t.String(), err)
		}
		return d.String(), false, nil
	case float64:
		d, err := decimal.NewFromString(pc.FormatFloat(t))
		if err != nil {
			return "", false, fmt.Errorf("bad numeric value %v: %w", t, err)
		}
		return d.String(), false, nil
	case int:
		return strconv.Itoa(t), false, nil
	case int64:
		return strconv.FormatInt(t, 10), false, nil
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false, fmt.Errorf("marshal nested value: %w", err)
		}
		return string(raw), false, nil
	default:
		return fmt.Sprint(t), false, nil
	}
}

// KeyString joins the canonical text forms of the key property values with
// commas. It returns "" when keyProperties is empty. A record missing one of
// its key properties is an error: the key would not be stable.
func KeyString(record map[string]any, keyProperties []string, pc *precision.Context) (string, error) {
	if len(keyProperties) == 0 {
		return "", nil
	}
	parts := make([]string, len(keyProperties))
	for i, prop := range keyProperties {
		v, ok := record[prop]
		if !ok || v == nil {
			return "", fmt.Errorf("record is missing key property %q", prop)
		}
		s, _, err := FieldString(v, pc)
		if err != nil {
			return "", fmt.Errorf("key property %q: %w", prop, err)
		}
		parts[i] = s
	}
	return strings.Join(parts, ","), nil
}

// CSVLine renders a record as one CSV line in column order, terminated by a
// newline. String-typed fields are always quoted so that an empty string
// stays distinguishable from NULL (which is written as an empty unquoted
// field); numbers and booleans are written bare. The output is readable by
// both Postgres COPY (FORMAT csv, NULL '') and encoding/csv.
func CSVLine(record map[string]any, cols []Column, pc *precision.Context) ([]byte, error) {
	var b bytes.Buffer
	for i, col := range cols {
		if i > 0 {
			b.WriteByte(',')
		}
		s, isNull, err := FieldString(record[col.Name], pc)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		if isNull {
			continue
		}
		switch col.Type {
		case "integer", "number", "boolean":
			b.WriteString(s)
		default:
			writeQuoted(&b, s)
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// writeQuoted writes s as a double-quoted CSV field with embedded quotes
// doubled.
func writeQuoted(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			b.WriteByte('"')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
}
