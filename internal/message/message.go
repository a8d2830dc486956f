// Package message defines the wire-level model for the Singer message stream
// consumed on stdin: one JSON object per line, classified by its "type" field.
//
// Parsing is strict and fail-fast. A message is represented as a tagged
// variant over the four known kinds; kind-specific required fields are
// enforced at construction time, so the dispatch loop never has to re-check
// the shape of a message it receives. Unknown top-level fields are ignored,
// matching the protocol's forward-compatibility rules.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies the message variant carried on a line.
type Kind string

const (
	// KindSchema declares (or replaces) a stream's schema and key properties.
	KindSchema Kind = "SCHEMA"
	// KindRecord carries one data record for a previously declared stream.
	KindRecord Kind = "RECORD"
	// KindState carries an opaque checkpoint value.
	KindState Kind = "STATE"
	// KindActivateVersion is acknowledged but otherwise ignored.
	KindActivateVersion Kind = "ACTIVATE_VERSION"
)

// Message is one parsed input line. Only the fields relevant to Type are
// populated; Parse guarantees the required ones are present.
type Message struct {
	Type   Kind
	Stream string

	// Schema is the raw JSON schema document of a SCHEMA message.
	Schema json.RawMessage

	// KeyProperties lists the ordered primary-key field names of a SCHEMA
	// message. Present (possibly empty) on every SCHEMA message; its absence
	// is a protocol error.
	KeyProperties []string

	// Record holds the payload of a RECORD message. Numeric leaves are
	// decoded as json.Number so precision survives until validation and
	// serialization.
	Record map[string]any

	// Value is the raw checkpoint payload of a STATE message.
	Value json.RawMessage
}

// rawMessage mirrors the wire shape. Pointer fields distinguish "absent"
// from "present but empty", which matters for key_properties.
type rawMessage struct {
	Type          *string         `json:"type"`
	Stream        string          `json:"stream"`
	Schema        json.RawMessage `json:"schema"`
	KeyProperties *[]string       `json:"key_properties"`
	Record        map[string]any  `json:"record"`
	Value         json.RawMessage `json:"value"`
}

// Parse decodes a single input line into a Message, enforcing the
// kind-specific required fields. All failures are *ProtocolError.
func Parse(line []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var raw rawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unable to parse line: %v", err)}
	}
	if raw.Type == nil {
		return nil, &ProtocolError{Reason: "line is missing required key 'type'"}
	}

	m := &Message{Type: Kind(*raw.Type), Stream: raw.Stream, Value: raw.Value}

	switch m.Type {
	case KindSchema:
		if raw.Stream == "" {
			return nil, &ProtocolError{Reason: "SCHEMA message is missing required key 'stream'"}
		}
		if len(raw.Schema) == 0 {
			return nil, &ProtocolError{Reason: fmt.Sprintf("SCHEMA message for stream %q is missing required key 'schema'", raw.Stream)}
		}
		if raw.KeyProperties == nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("SCHEMA message for stream %q is missing required key 'key_properties'", raw.Stream)}
		}
		m.Schema = raw.Schema
		m.KeyProperties = *raw.KeyProperties

	case KindRecord:
		if raw.Stream == "" {
			return nil, &ProtocolError{Reason: "RECORD message is missing required key 'stream'"}
		}
		if raw.Record == nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("RECORD message for stream %q is missing required key 'record'", raw.Stream)}
		}
		m.Record = raw.Record

	case KindState:
		// Value may legitimately be null; nothing further to enforce.

	case KindActivateVersion:
		// Acknowledged by the dispatcher, no payload requirements.

	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", *raw.Type)}
	}

	return m, nil
}
