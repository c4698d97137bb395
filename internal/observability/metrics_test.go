package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RoutingDecision("tool_execution", false)
	m.RoutingDecision("tool_execution", false)
	m.RoutingDecision("direct_response", true)
	m.GatewayRequest("ok", "", true, 150*time.Millisecond)
	m.GatewayRequest("error", "authentication", false, time.Second)
	m.ToolResolved("public")
	m.SchemaCacheLookup(true)
	m.SchemaCacheLookup(false)
	m.SchemaCacheLookup(false)
	m.ExecutionRetry()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.routingDecisions.WithLabelValues("tool_execution", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routingDecisions.WithLabelValues("direct_response", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("error", "authentication")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolResolutions.WithLabelValues("public")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.schemaCacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executionRetries))
	assert.Equal(t, 2, testutil.CollectAndCount(m.gatewayDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RoutingDecision("introspection", false)
		m.GatewayRequest("ok", "", false, time.Millisecond)
		m.ToolResolved("local")
		m.SchemaCacheLookup(true)
		m.ExecutionRetry()
	})
	assert.NotNil(t, m.Handler())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(nil)
	m.ExecutionRetry()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "navigator_execution_retries_total 1")
	assert.False(t, strings.Contains(body, "go_goroutines"), "a private registry should not carry the default collectors")
}

func TestInitTracing_DisabledWithoutEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logger)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}
