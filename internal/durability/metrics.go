package durability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpad_save_writes_total",
		Help: "Snapshot writes by outcome",
	}, []string{"status"})

	writeRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskpad_save_retries_total",
		Help: "Snapshot write attempts that were retried",
	})

	writeDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskpad_save_duration_seconds",
		Help:    "Time to write a snapshot, including retries",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"status"})

	coalescedRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskpad_save_requests_coalesced_total",
		Help: "Save requests absorbed by an already pending save",
	})

	backupOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpad_backup_operations_total",
		Help: "Backup operations by type and status",
	}, []string{"operation", "status"})

	snapshotRecordsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskpad_snapshot_records",
		Help: "Records in the most recently written snapshot",
	})
)

var tracer = otel.Tracer("taskpad.durability")

const (
	statusSuccess = "success"
	statusFailure = "failure"
)
