package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordRun(t *testing.T) {
	t.Parallel()

	c := NewCollector("test")
	c.RecordRun("finite", "completed", 3*time.Second)
	c.RecordRun("finite", "completed", time.Second)
	c.RecordRun("infinite", "cancelled", time.Minute)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsTotal.WithLabelValues("finite", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("infinite", "cancelled")))
}

func TestCollector_RecordTurn(t *testing.T) {
	t.Parallel()

	c := NewCollector("test")
	c.RecordTurn("athena", "openai", 500*time.Millisecond, 120)
	c.RecordTurn("athena", "openai", time.Second, 80)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.turnsTotal.WithLabelValues("athena", "openai")))
	assert.Equal(t, float64(200), testutil.ToFloat64(c.tokensTotal.WithLabelValues("athena")))
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()

	c := NewCollector("test")
	c.RecordQuality("athena", 7)
	c.RecordHTTPRequest("POST", "/v1/runs", 202, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "test_response_quality")
	assert.Contains(t, body, "test_http_requests_total")
}
