package sink

import "fmt"

// Error reports an adapter failure during schema-ensure or bulk-load. Sink
// errors are propagated as fatal; the core does not retry.
type Error struct {
	Op     string // "ensure-schema" or "bulk-load"
	Stream string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s for stream %q: %v", e.Op, e.Stream, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
