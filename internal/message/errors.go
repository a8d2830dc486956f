package message

import "fmt"

// ProtocolError reports malformed or out-of-order input: an unparseable line,
// a missing required field, an unknown message kind, or a RECORD arriving
// before its stream's SCHEMA. Protocol errors are always fatal; the run
// aborts without emitting a checkpoint for unflushed data.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// Protocolf builds a *ProtocolError from a format string.
func Protocolf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
