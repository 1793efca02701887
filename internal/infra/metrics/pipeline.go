package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		pipelineRunsTotal,
		pipelineActive,
		stageDurationSeconds,
		workerQueueDepth,
		reconciledMessagesTotal,
	)
}

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Finished pipeline runs by turn kind and terminal status.",
		},
		[]string{"kind", "status"}, // status: 'done', 'error'
	)

	pipelineActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_active",
			Help: "Pipeline runs currently executing.",
		},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"stage", "success"},
	)

	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Tasks waiting in the worker pool queue.",
		},
	)

	reconciledMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_reconciled_messages_total",
			Help: "Interrupted messages marked as error by the reconciler.",
		},
	)
)

func IncPipelineRun(kind, status string) {
	pipelineRunsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func PipelineStarted()  { pipelineActive.Inc() }
func PipelineFinished() { pipelineActive.Dec() }

func ObserveStage(stage string, d time.Duration, success bool) {
	stageDurationSeconds.WithLabelValues(norm(stage), strconv.FormatBool(success)).Observe(d.Seconds())
}

func SetQueueDepth(n int) { workerQueueDepth.Set(float64(n)) }

func AddReconciled(n int) { reconciledMessagesTotal.Add(float64(n)) }
