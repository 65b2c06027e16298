package telemetry

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveRound("final")
	m.ObserveToolCall("filesystem", nil)
	m.ObserveToolCall("filesystem", errors.New("boom"))
	m.ObserveBackendTurn(250*time.Millisecond, nil)
	m.ObserveModelList(true)
	m.ObserveSessionOpen("filesystem", nil)
	m.SetBreakerState("backend", 1)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}

	assert.Contains(t, names, "mcpxagent_rounds_total")
	assert.Contains(t, names, "mcpxagent_tool_calls_total")
	assert.Contains(t, names, "mcpxagent_backend_turn_seconds")
	assert.Contains(t, names, "mcpxagent_model_list_total")
	assert.Contains(t, names, "mcpxagent_session_opens_total")
	assert.Contains(t, names, "mcpxagent_breaker_state")
}

func TestMetricsOrNop(t *testing.T) {
	assert.Equal(t, NopMetrics{}, MetricsOrNop(nil))

	m := NewPrometheusMetrics(prometheus.NewRegistry())
	assert.Same(t, m, MetricsOrNop(m))
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggerOptions{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Debug("hello", ServerField("fs"), RoundField(2))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"server":"fs"`)
	assert.Contains(t, out, `"round":2`)
}

func TestNewLoggerRejectsUnknownLevelAndFormat(t *testing.T) {
	_, err := NewLogger(LoggerOptions{Level: "loud", Output: &bytes.Buffer{}})
	assert.Error(t, err)

	_, err = NewLogger(LoggerOptions{Format: "xml", Output: &bytes.Buffer{}})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
