// Package metrics exposes Prometheus collectors for supervisor decisions,
// worker invocations, tool calls and model retries.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional *Metrics without guarding every call.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentdesk"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors registered on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	decisions         *prometheus.CounterVec
	workerInvocations *prometheus.CounterVec
	workerDuration    *prometheus.HistogramVec
	toolCalls         *prometheus.CounterVec
	modelRetries      *prometheus.CounterVec
	runCycles         prometheus.Histogram
	runs              *prometheus.CounterVec
}

// Options configures New.
type Options struct {
	// IncludeRuntime adds the Go runtime and process collectors.
	IncludeRuntime bool
}

// New creates and registers all collectors.
func New(optFns ...func(o *Options)) *Metrics {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	reg := prometheus.NewRegistry()
	if opts.IncludeRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_decisions_total",
			Help:      "Supervisor routing decisions by destination.",
		}, []string{"destination"}),
		workerInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_invocations_total",
			Help:      "Worker invocations by worker and outcome.",
		}, []string{"worker", "outcome"}),
		workerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_duration_seconds",
			Help:      "Worker invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"worker"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		modelRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_retries_total",
			Help:      "Model calls retried after a transient failure.",
		}, []string{"model"}),
		runCycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_cycles",
			Help:      "Supervisor cycles per orchestration run.",
			Buckets:   prometheus.LinearBuckets(1, 2, 13),
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestration runs by termination reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.decisions,
		m.workerInvocations,
		m.workerDuration,
		m.toolCalls,
		m.modelRetries,
		m.runCycles,
		m.runs,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Decision counts a supervisor routing decision.
func (m *Metrics) Decision(destination string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(destination).Inc()
}

// WorkerInvocation records one worker call and its latency.
func (m *Metrics) WorkerInvocation(worker string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.workerInvocations.WithLabelValues(worker, outcome(err)).Inc()
	m.workerDuration.WithLabelValues(worker).Observe(seconds)
}

// ToolCall counts one tool execution.
func (m *Metrics) ToolCall(tool string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome(err)).Inc()
}

// ModelRetry counts a retried model call.
func (m *Metrics) ModelRetry(model string) {
	if m == nil {
		return
	}
	m.modelRetries.WithLabelValues(model).Inc()
}

// RunFinished records the cycle count and termination reason of a run.
func (m *Metrics) RunFinished(reason string, cycles int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(reason).Inc()
	m.runCycles.Observe(float64(cycles))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
