package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepmarket_turns_total",
			Help: "Total number of conversation turns",
		},
		[]string{"status"}, // status: success|error|busy|recursion
	)

	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepmarket_model_calls_total",
			Help: "Total number of model invocations",
		},
		[]string{"stage", "status"},
	)

	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepmarket_model_latency_seconds",
			Help:    "Model invocation latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"stage"},
	)

	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepmarket_tool_calls_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepmarket_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"tool"},
	)

	PipelineStage = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepmarket_pipeline_stage_seconds",
			Help:    "Report pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "status"},
	)

	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepmarket_persistence_failures_total",
			Help: "Writes to the persistence sink or memory store that failed after retry",
		},
		[]string{"target"}, // target: sink|memory|checkpoint
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Turns)
		prometheus.MustRegister(ModelCalls)
		prometheus.MustRegister(ModelLatency)
		prometheus.MustRegister(ToolCalls)
		prometheus.MustRegister(ToolLatency)
		prometheus.MustRegister(PipelineStage)
		prometheus.MustRegister(PersistenceFailures)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func RecordTurn(outcome string) {
	Turns.WithLabelValues(outcome).Inc()
}

func RecordModelCall(stage string, latency time.Duration, err error) {
	ModelCalls.WithLabelValues(stage, status(err)).Inc()
	ModelLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

func RecordToolCall(tool string, latency time.Duration, err error) {
	ToolCalls.WithLabelValues(tool, status(err)).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

func RecordPipelineStage(stage string, latency time.Duration, err error) {
	PipelineStage.WithLabelValues(stage, status(err)).Observe(latency.Seconds())
}

func RecordPersistenceFailure(target string) {
	PersistenceFailures.WithLabelValues(target).Inc()
}
