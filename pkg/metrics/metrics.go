package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch lifecycle metrics
	BatchesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_batches_scheduled_total",
			Help: "Total number of batches submitted to the runtime",
		},
	)

	BatchesCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_batches_committed_total",
			Help: "Total number of batches whose commit completed",
		},
	)

	BatchesCanceled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_batches_canceled_total",
			Help: "Total number of batches canceled by a rollback",
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_rollbacks_total",
			Help: "Total number of rollback operations executed",
		},
	)

	BatchProcessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kiln_batch_process_duration_seconds",
			Help:    "Time from batch scheduling to the processed latch opening",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transaction metrics
	TxsExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_txs_executed_total",
			Help: "Total number of transactions executed by the VM",
		},
	)

	TxsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_txs_failed_total",
			Help: "Total number of transactions whose VM execution returned an error",
		},
	)

	// Storage metrics
	StorageReadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_storage_reads_total",
			Help: "Total number of read commands executed by the reader pool",
		},
	)

	StorageWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_storage_writes_total",
			Help: "Total number of write commands executed by the write worker, by kind",
		},
		[]string{"kind"},
	)

	StorageCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_storage_commits_total",
			Help: "Total number of write batches committed to the store",
		},
	)

	StorageCommitSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kiln_storage_commit_size_commands",
			Help:    "Number of commands per committed write batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	ReadQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiln_storage_read_queue_depth",
			Help: "Approximate depth of the read command queue",
		},
	)

	ActiveReaders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiln_storage_active_readers",
			Help: "Target number of active reader goroutines",
		},
	)

	// Executor metrics
	TasksStolen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_executor_tasks_stolen_total",
			Help: "Total number of tasks acquired by workers, by source",
		},
		[]string{"source"},
	)

	WorkerParks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_executor_worker_parks_total",
			Help: "Total number of times a worker parked for lack of work",
		},
	)
)

func init() {
	prometheus.MustRegister(BatchesScheduled)
	prometheus.MustRegister(BatchesCommitted)
	prometheus.MustRegister(BatchesCanceled)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(BatchProcessDuration)
	prometheus.MustRegister(TxsExecuted)
	prometheus.MustRegister(TxsFailed)
	prometheus.MustRegister(StorageReadsTotal)
	prometheus.MustRegister(StorageWritesTotal)
	prometheus.MustRegister(StorageCommitsTotal)
	prometheus.MustRegister(StorageCommitSize)
	prometheus.MustRegister(ReadQueueDepth)
	prometheus.MustRegister(ActiveReaders)
	prometheus.MustRegister(TasksStolen)
	prometheus.MustRegister(WorkerParks)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
