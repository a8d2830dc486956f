package target

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// buffer is one stream's staging area between flushes: a temp-file-backed
// block of serialized records, the count of rows staged into it, and the set
// of primary-key strings already staged. Keys are stored as xxh3 hashes; the
// set only has to answer "seen within this batch", not enumerate keys, and a
// wide batch of long composite keys would otherwise pin a lot of memory.
type buffer struct {
	file     *os.File
	w        *bufio.Writer
	rowCount int
	seenKeys map[uint64]struct{}
}

func newBuffer() (*buffer, error) {
	f, err := os.CreateTemp("", "target-postgres-*.csv")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return &buffer{
		file:     f,
		w:        bufio.NewWriter(f),
		seenKeys: map[uint64]struct{}{},
	}, nil
}

// appendLine stages one serialized record and increments the row count.
func (b *buffer) appendLine(line []byte) error {
	if _, err := b.w.Write(line); err != nil {
		return fmt.Errorf("stage record: %w", err)
	}
	b.rowCount++
	return nil
}

// seen reports whether a non-empty key string was already staged since the
// last reset.
func (b *buffer) seen(key string) bool {
	_, ok := b.seenKeys[xxh3.HashString(key)]
	return ok
}

func (b *buffer) markSeen(key string) {
	b.seenKeys[xxh3.HashString(key)] = struct{}{}
}

// startLoad finalizes the staged block and returns a reader positioned at its
// start, ready to hand to a sink's bulk load.
func (b *buffer) startLoad() (io.Reader, error) {
	if err := b.w.Flush(); err != nil {
		return nil, fmt.Errorf("flush staging file: %w", err)
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind staging file: %w", err)
	}
	return b.file, nil
}

// reset replaces the staging block, the row count, and the seen-key set in
// one step. The new staging file is created first so that on failure the
// buffer keeps its previous state; a half-reset buffer would break the
// duplicate-detection contract.
func (b *buffer) reset() error {
	f, err := os.CreateTemp("", "target-postgres-*.csv")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	b.discard()
	b.file = f
	b.w = bufio.NewWriter(f)
	b.rowCount = 0
	b.seenKeys = map[uint64]struct{}{}
	return nil
}

// discard closes and removes the staging file. Removal failures are ignored;
// the file lives in the temp dir and holds no durable state.
func (b *buffer) discard() {
	if b.file == nil {
		return
	}
	name := b.file.Name()
	_ = b.file.Close()
	_ = os.Remove(name)
	b.file = nil
}
