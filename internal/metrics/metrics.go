// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the target.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the sink abstraction pattern: the dispatch core depends only
//     on this interface while concrete metric systems live in subpackages.
//
// The primary use case is instrumentation of the dispatch loop (messages per
// kind, rows staged, batches flushed, bulk-load durations) without coupling
// the core logic to a specific metrics system.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordMessage counts one handled input message of the given kind
// (SCHEMA, RECORD, STATE, ACTIVATE_VERSION).
func RecordMessage(job, kind string) {
	backend.IncCounter("target_messages_total", 1, Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordRows counts rows staged or loaded for a stream.
//
// Typical kinds:
//   - "staged"   rows appended to a staging block
//   - "loaded"   rows handed to a successful bulk load
func RecordRows(job, stream, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("target_rows_total", float64(delta), Labels{
		"job":    job,
		"stream": stream,
		"kind":   kind,
	})
}

// RecordBatch counts one flushed batch for a stream and records the bulk-load
// duration and outcome.
func RecordBatch(job, stream string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"stream": stream,
		"status": status,
	}
	backend.IncCounter("target_batches_total", 1, lbls)
	backend.ObserveHistogram("target_batch_duration_seconds", d.Seconds(), lbls)
}
