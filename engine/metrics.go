package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tailored-agentic-units/stategraph/observability"
)

// MetricsObserver derives Prometheus metrics from engine events.
type MetricsObserver struct {
	runsCompleted  *prometheus.CounterVec
	activeRuns     prometheus.Gauge
	runRounds      prometheus.Histogram
	nodeExecutions *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	nodeRetries    *prometheus.CounterVec
	checkpoints    prometheus.Counter
}

// NewMetricsObserver registers the engine metrics on reg. A nil reg uses the
// default Prometheus registerer.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsObserver{
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stategraph_runs_completed_total",
				Help: "Total number of finished runs",
			},
			[]string{"graph", "status", "reason"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stategraph_active_runs",
				Help: "Number of runs currently executing",
			},
		),
		runRounds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stategraph_run_rounds",
				Help:    "Rounds executed per finished run",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
			},
		),
		nodeExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stategraph_node_executions_total",
				Help: "Total number of node executions by outcome",
			},
			[]string{"node", "outcome"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stategraph_node_duration_seconds",
				Help:    "Node execution duration in seconds, retries included",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"node"},
		),
		nodeRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stategraph_node_retries_total",
				Help: "Total number of node retry attempts",
			},
			[]string{"node"},
		),
		checkpoints: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stategraph_checkpoints_saved_total",
				Help: "Total number of checkpoints saved",
			},
		),
	}
}

func (m *MetricsObserver) OnEvent(_ context.Context, event observability.Event) {
	switch event.Type {
	case EventRunStart:
		m.activeRuns.Inc()

	case EventRunComplete:
		m.activeRuns.Dec()
		m.runsCompleted.WithLabelValues(
			str(event.Data, "graph"),
			str(event.Data, "status"),
			str(event.Data, "reason"),
		).Inc()
		if rounds, ok := event.Data["rounds"].(int); ok {
			m.runRounds.Observe(float64(rounds))
		}

	case EventNodeComplete:
		m.observeNode(event, "success")

	case EventNodeDegraded:
		m.observeNode(event, "degraded")

	case EventNodeFailed:
		m.observeNode(event, "failed")

	case EventNodeRetry:
		m.nodeRetries.WithLabelValues(str(event.Data, "node")).Inc()

	case EventCheckpointSave:
		m.checkpoints.Inc()
	}
}

func (m *MetricsObserver) observeNode(event observability.Event, outcome string) {
	node := str(event.Data, "node")
	m.nodeExecutions.WithLabelValues(node, outcome).Inc()
	if d, ok := event.Data["duration"].(time.Duration); ok {
		m.nodeDuration.WithLabelValues(node).Observe(d.Seconds())
	}
}

func str(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
