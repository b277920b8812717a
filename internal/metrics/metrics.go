// Package metrics holds the Prometheus collectors of the replication pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

var (
	// Replication
	MutationsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nosql2sql_mutations_total",
		Help: "The total number of mutations handled, by kind and outcome",
	}, []string{"kind", "outcome"})

	ApplyLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "nosql2sql_apply_latency_seconds",
		Help: "The latency of applying one mutation",
	}, []string{"kind"})

	DDLStatements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nosql2sql_ddl_statements_total",
		Help: "The total number of DDL statements issued, by statement kind and outcome",
	}, []string{"statement", "outcome"})

	UnsupportedAttributes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nosql2sql_unsupported_attributes_total",
		Help: "The total number of attributes excluded from mapping",
	})

	// Snapshot
	SnapshotDocuments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nosql2sql_snapshot_documents_total",
		Help: "The total number of documents decoded from snapshot artifacts",
	})

	SnapshotArtifacts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nosql2sql_snapshot_artifacts_total",
		Help: "The total number of snapshot artifacts opened, by outcome",
	}, []string{"outcome"})

	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nosql2sql_snapshot_decode_errors_total",
		Help: "The total number of snapshot records that failed to decode",
	})

	// Export
	ExportPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nosql2sql_export_polls_total",
		Help: "The total number of export status checks",
	})

	ExportsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nosql2sql_exports_finished_total",
		Help: "The total number of exports that reached a terminal state",
	}, []string{"status"})

	// HTTP
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nosql2sql_http_requests_total",
		Help: "The total number of HTTP requests served, by method and status code",
	}, []string{"method", "code"})

	// Queue
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nosql2sql_queue_depth",
		Help: "The number of batches waiting in the change queue",
	})
)

func init() {
	prometheus.MustRegister(MutationsApplied)
	prometheus.MustRegister(ApplyLatency)
	prometheus.MustRegister(DDLStatements)
	prometheus.MustRegister(UnsupportedAttributes)
	prometheus.MustRegister(SnapshotDocuments)
	prometheus.MustRegister(SnapshotArtifacts)
	prometheus.MustRegister(DecodeErrors)
	prometheus.MustRegister(ExportPolls)
	prometheus.MustRegister(ExportsFinished)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(QueueDepth)
}
