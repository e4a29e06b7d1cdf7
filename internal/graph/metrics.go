package graph

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by Graph.
type Metrics struct {
	OperationsTotal          *prometheus.CounterVec
	OperationDuration        *prometheus.HistogramVec
	RejectedRelationships    *prometheus.CounterVec
	SchemaObjectsInitialized *prometheus.CounterVec
}

// NewMetrics registers the graph collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		OperationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netgraph_operations_total",
				Help: "Total number of graph operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netgraph_operation_duration_seconds",
				Help:    "Graph operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		RejectedRelationships: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netgraph_rejected_relationships_total",
				Help: "Relationships refused by the legality table",
			},
			[]string{"from", "to", "type"},
		),
		SchemaObjectsInitialized: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netgraph_schema_objects_total",
				Help: "Schema objects seen at bootstrap by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordOperation records one operation with its duration.
func (m *Metrics) RecordOperation(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, outcomeLabel(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *Metrics) recordRejected(e *NoRelationshipPossibleError) {
	if m == nil {
		return
	}
	m.RejectedRelationships.WithLabelValues(string(e.FromMeta), string(e.ToMeta), string(e.Type)).Inc()
}

func (m *Metrics) recordSchema(results []SchemaResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.SchemaObjectsInitialized.WithLabelValues(r.Outcome.String()).Inc()
	}
}

// outcomeLabel maps an error to a bounded label value.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIllegalRelationship):
		return "illegal"
	case errors.Is(err, ErrConnection):
		return "unavailable"
	case errors.Is(err, ErrBadProperties), errors.Is(err, ErrInvalidMetaType),
		errors.Is(err, ErrInvalidLabel), errors.Is(err, ErrMissingMetaType):
		return "invalid"
	case errors.Is(err, ErrHandleExists), errors.Is(err, ErrMultipleMatches):
		return "conflict"
	default:
		return "error"
	}
}
