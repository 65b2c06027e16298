package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records agent activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveRound(status string)
	ObserveToolCall(server string, err error)
	ObserveBackendTurn(duration time.Duration, err error)
	ObserveModelList(cacheHit bool)
	ObserveSessionOpen(server string, err error)
	SetBreakerState(name string, state int)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveRound(string)                     {}
func (NopMetrics) ObserveToolCall(string, error)           {}
func (NopMetrics) ObserveBackendTurn(time.Duration, error) {}
func (NopMetrics) ObserveModelList(bool)                   {}
func (NopMetrics) ObserveSessionOpen(string, error)        {}
func (NopMetrics) SetBreakerState(string, int)             {}

// MetricsOrNop returns m, or NopMetrics when nil.
func MetricsOrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}

type PrometheusMetrics struct {
	rounds        *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	backendTurns  *prometheus.HistogramVec
	modelLists    *prometheus.CounterVec
	sessionOpens  *prometheus.CounterVec
	breakerStates *prometheus.GaugeVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		rounds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpxagent_rounds_total",
				Help: "Agent loop rounds by outcome",
			},
			[]string{"status"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpxagent_tool_calls_total",
				Help: "Tool calls dispatched to tool servers",
			},
			[]string{"server", "status"},
		),
		backendTurns: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpxagent_backend_turn_seconds",
				Help:    "Latency of completion backend turns in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		modelLists: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpxagent_model_list_total",
				Help: "Available-model lookups by cache outcome",
			},
			[]string{"source"},
		),
		sessionOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpxagent_session_opens_total",
				Help: "Tool server session open attempts",
			},
			[]string{"server", "status"},
		),
		breakerStates: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpxagent_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"breaker"},
		),
	}
}

func (p *PrometheusMetrics) ObserveRound(status string) {
	p.rounds.WithLabelValues(status).Inc()
}

func (p *PrometheusMetrics) ObserveToolCall(server string, err error) {
	p.toolCalls.WithLabelValues(server, statusLabel(err)).Inc()
}

func (p *PrometheusMetrics) ObserveBackendTurn(duration time.Duration, err error) {
	p.backendTurns.WithLabelValues(statusLabel(err)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveModelList(cacheHit bool) {
	source := "fetch"
	if cacheHit {
		source = "cache"
	}
	p.modelLists.WithLabelValues(source).Inc()
}

func (p *PrometheusMetrics) ObserveSessionOpen(server string, err error) {
	p.sessionOpens.WithLabelValues(server, statusLabel(err)).Inc()
}

func (p *PrometheusMetrics) SetBreakerState(name string, state int) {
	p.breakerStates.WithLabelValues(name).Set(float64(state))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

var _ Metrics = (*PrometheusMetrics)(nil)
