package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects navigator metrics. A nil *Metrics is valid and records nothing,
// so components can be built without metrics in tests.
type Metrics struct {
	gatherer prometheus.Gatherer

	// routing_decisions_total{intent,fallback}
	routingDecisions *prometheus.CounterVec
	// gateway_requests_total{status,category}
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	// tool_resolutions_total{source}
	toolResolutions *prometheus.CounterVec
	// schema_cache_lookups_total{result}
	schemaCacheLookups *prometheus.CounterVec
	executionRetries   prometheus.Counter
}

// NewMetrics registers all collectors with reg, or with a fresh registry when
// reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		routingDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_routing_decisions_total",
				Help: "Routing decisions by intent and whether the router fell back",
			},
			[]string{"intent", "fallback"},
		),
		gatewayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_gateway_requests_total",
				Help: "Upstream Responses API calls by outcome",
			},
			[]string{"status", "category"},
		),
		gatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "navigator_gateway_request_duration_seconds",
				Help:    "Latency of upstream Responses API calls",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"with_tools"},
		),
		toolResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_tool_resolutions_total",
				Help: "Tool name resolutions by the chain step that resolved them",
			},
			[]string{"source"},
		),
		schemaCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_schema_cache_lookups_total",
				Help: "Schema cache lookups by result",
			},
			[]string{"result"},
		),
		executionRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "navigator_execution_retries_total",
				Help: "Single-tool retries after a schema mismatch",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RoutingDecision(intent string, fallback bool) {
	if m == nil {
		return
	}
	fb := "false"
	if fallback {
		fb = "true"
	}
	m.routingDecisions.WithLabelValues(intent, fb).Inc()
}

func (m *Metrics) GatewayRequest(status, category string, withTools bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	wt := "false"
	if withTools {
		wt = "true"
	}
	m.gatewayRequests.WithLabelValues(status, category).Inc()
	m.gatewayDuration.WithLabelValues(wt).Observe(elapsed.Seconds())
}

func (m *Metrics) ToolResolved(source string) {
	if m == nil {
		return
	}
	m.toolResolutions.WithLabelValues(source).Inc()
}

func (m *Metrics) SchemaCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.schemaCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ExecutionRetry() {
	if m == nil {
		return
	}
	m.executionRetries.Inc()
}
