package schema

import "fmt"

// ValidationError reports a record that failed schema or format checks for
// its stream. There is no dead-letter path; validation failures are fatal.
type ValidationError struct {
	Stream string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record for stream %q failed validation: %v", e.Stream, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
