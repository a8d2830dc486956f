package target

import (
	"fmt"
	"io"
	"log"
)

// Emitter writes checkpoint values as the target's only structured output.
// Each checkpoint is written as one JSON line and handed to the writer
// immediately, unbuffered, so a supervising process observes progress as it
// happens.
type Emitter struct {
	out io.Writer
}

// NewEmitter returns an Emitter writing to out (normally stdout; logs go to
// stderr so the two never interleave).
func NewEmitter(out io.Writer) *Emitter {
	return &Emitter{out: out}
}

// Emit writes one checkpoint line. A nil checkpoint is a no-op: emitting
// nothing is better than emitting a checkpoint that never existed.
func (e *Emitter) Emit(state []byte) error {
	if state == nil {
		return nil
	}
	log.Printf("emitting state %s", state)
	line := make([]byte, 0, len(state)+1)
	line = append(line, state...)
	line = append(line, '\n')
	if _, err := e.out.Write(line); err != nil {
		return fmt.Errorf("emit state: %w", err)
	}
	return nil
}
