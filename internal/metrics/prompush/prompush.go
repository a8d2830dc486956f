// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the common target labels (job, stream, kind, status) onto
//     Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint; a target run is a batch job, so
//     there is nothing long-lived to scrape.
//
// The package intentionally contains all Prometheus-specific dependencies so
// that the rest of the project remains decoupled from Prometheus.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/siilats/target-postgres/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	messageCounter *prometheus.CounterVec // "target_messages_total"
	rowCounter     *prometheus.CounterVec // "target_rows_total"
	batchCounter   *prometheus.CounterVec // "target_batches_total"
	batchDuration  *prometheus.SummaryVec // "target_batch_duration_seconds"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (usually the config's job field).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "target_postgres"
	}

	reg := prometheus.NewRegistry()

	messageCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "target_messages_total",
			Help: "Total number of handled input messages, partitioned by kind.",
		},
		[]string{"kind"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "target_rows_total",
			Help: "Row-level counts per stream and kind (staged, loaded).",
		},
		[]string{"stream", "kind"},
	)
	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "target_batches_total",
			Help: "Total number of bulk-load batches, partitioned by stream and status.",
		},
		[]string{"stream", "status"},
	)
	batchDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "target_batch_duration_seconds",
			Help:       "Duration of bulk loads in seconds, partitioned by stream and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"stream", "status"},
	)

	for _, c := range []prometheus.Collector{messageCounter, rowCounter, batchCounter, batchDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:     gatewayURL,
		jobName:        jobName,
		reg:            reg,
		messageCounter: messageCounter,
		rowCounter:     rowCounter,
		batchCounter:   batchCounter,
		batchDuration:  batchDuration,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "target_messages_total":
		b.messageCounter.WithLabelValues(labels["kind"]).Add(delta)

	case "target_rows_total":
		b.rowCounter.WithLabelValues(labels["stream"], labels["kind"]).Add(delta)

	case "target_batches_total":
		b.batchCounter.WithLabelValues(labels["stream"], labels["status"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "target_batch_duration_seconds" {
		return
	}
	b.batchDuration.WithLabelValues(labels["stream"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
