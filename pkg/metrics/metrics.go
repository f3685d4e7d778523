// Package metrics exports Prometheus metrics for rcopy operations.
// A nil *Registry is valid and records nothing.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/jvs-project/rcopy/pkg/model"
)

const namespace = "rcopy"

// Registry holds all rcopy metrics.
type Registry struct {
	reg          *prometheus.Registry
	operations   *prometheus.CounterVec
	durations    *prometheus.HistogramVec
	terminations *prometheus.CounterVec
}

// NewRegistry creates a registry with all rcopy collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Copier operations by operation and outcome kind.",
		}, []string{"op", "kind"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of copier operations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 10),
		}, []string{"op"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Terminate calls by whether a process was killed.",
		}, []string{"killed"}),
	}
	r.reg.MustRegister(r.operations, r.durations, r.terminations)
	return r
}

// RecordOperation records one finished operation.
func (r *Registry) RecordOperation(op model.OperationType, kind model.Kind, d time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(string(op), string(kind)).Inc()
	r.durations.WithLabelValues(string(op)).Observe(d.Seconds())
}

// RecordTermination records a Terminate call.
func (r *Registry) RecordTermination(killed bool) {
	if r == nil {
		return
	}
	r.terminations.WithLabelValues(fmt.Sprint(killed)).Inc()
}

// Gatherer exposes the underlying registry, e.g. for promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteText writes all metrics in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
