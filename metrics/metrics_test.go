package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsNilConfig(t *testing.T) {
	_, err := NewMetrics(nil)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestCustomMetrics(t *testing.T) {
	c, err := NewMetrics(DefaultConfig())
	require.NoError(t, err)

	c.Counter("dispatch_total", map[string]string{"topic": "orders"})
	c.Counter("dispatch_total", map[string]string{"topic": "orders"})
	c.Histogram("dispatch_duration_seconds", 0.25, map[string]string{"topic": "orders"})
	c.Gauge("outstanding_messages", 42, nil)

	// 通过 HTTP handler 导出验证
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.GetHandler().ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, `outboxkit_dispatch_total{topic="orders"} 2`), out)
	assert.True(t, strings.Contains(out, "outboxkit_dispatch_duration_seconds"), out)
	assert.True(t, strings.Contains(out, "outboxkit_outstanding_messages 42"), out)
}

func TestGetPath(t *testing.T) {
	c := MustNewMetrics(&Config{Namespace: "test"})
	assert.Equal(t, "/metrics", c.GetPath())

	c2 := MustNewMetrics(&Config{Path: "/internal/metrics"})
	assert.Equal(t, "/internal/metrics", c2.GetPath())
}
