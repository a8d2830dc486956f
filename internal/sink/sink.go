// Package sink contains the contract between the message-dispatch core and
// the relational sink backends, plus a factory registry so the core never
// imports a database driver directly.
//
// A Sink instance is bound to one stream declaration. The core creates a
// fresh handle on every SCHEMA message (the declaration may have changed) and
// reuses it for all of that stream's RECORDs until the next SCHEMA. Backends
// (postgres, sqlite, ...) register themselves with Register at init time;
// importing the sink/all package wires in every built-in backend.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/siilats/target-postgres/internal/config"
	"github.com/siilats/target-postgres/internal/precision"
)

// Decl is a stream declaration: the raw schema document plus the ordered
// primary-key field names, as carried by a SCHEMA message.
type Decl struct {
	Stream        string
	Schema        json.RawMessage
	KeyProperties []string
}

// Sink is the per-stream adapter for one relational destination.
type Sink interface {
	// EnsureSchema idempotently creates or evolves the destination object to
	// match the bound declaration. Evolution is additive only.
	EnsureSchema(ctx context.Context) error

	// PrimaryKeyString computes a deterministic key string for a record, or
	// "" when the stream declares no key properties. Logically equal keys
	// map to equal strings regardless of JSON number spelling.
	PrimaryKeyString(record map[string]any) (string, error)

	// SerializeRecord renders one record as a self-contained staged line,
	// appendable to the staging block.
	SerializeRecord(record map[string]any) ([]byte, error)

	// BulkLoad loads rowCount staged lines from r into the destination,
	// merging on primary key where one is defined.
	BulkLoad(ctx context.Context, r io.Reader, rowCount int) error

	// Close releases the backend connection.
	Close() error
}

// Factory opens a Sink of one backend kind for a stream declaration.
type Factory func(ctx context.Context, cfg config.Config, decl Decl, pc *precision.Context) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) a Factory for the given sink kind. It is
// typically called from backend packages' init functions.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Sink using the factory registered for cfg.Sink.
func New(ctx context.Context, cfg config.Config, decl Decl, pc *precision.Context) (Sink, error) {
	mu.RLock()
	f, ok := factories[cfg.Sink]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no sink backend registered for kind %q", cfg.Sink)
	}
	return f(ctx, cfg, decl, pc)
}
