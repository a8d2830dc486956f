// This file adds a lightweight linter for Config values. It performs static
// checks over a decoded Config and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into the
// config (e.g. "batch_size"); Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate performs static validation of a Config. It does not mutate the
// config; callers decide whether warnings are fatal.
func Validate(c Config) []Issue {
	var issues []Issue

	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
	}
	if _, ok := known[c.Sink]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink",
			Message:  fmt.Sprintf("unknown sink kind %q; ensure a matching backend is registered", c.Sink),
		})
	}

	if strings.TrimSpace(c.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "dsn",
			Message:  "no connection target: set dsn, or host/dbname for postgres",
		})
	}

	if c.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "batch_size",
			Message:  "batch_size must be positive",
		})
	} else if c.BatchSize > 0 && c.BatchSize < 100 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "batch_size",
			Message:  fmt.Sprintf("batch_size %d is very small; each flush is a full bulk load round-trip", c.BatchSize),
		})
	}

	if c.Sink == "sqlite" && strings.TrimSpace(c.Schema) != "" && c.Schema != "public" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "schema",
			Message:  "sqlite has no schema namespaces; the schema setting is ignored",
		})
	}

	return issues
}
