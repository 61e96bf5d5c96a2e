package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Decision("google_tasks")
	m.Decision("google_tasks")
	m.Decision("__end__")
	m.WorkerInvocation("google_tasks", 0.2, nil)
	m.WorkerInvocation("google_tasks", 0.1, errors.New("boom"))
	m.ToolCall("list_tasks", nil)
	m.ModelRetry("gemini-2.0-flash")
	m.RunFinished("supervisor", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("google_tasks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("__end__")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerInvocations.WithLabelValues("google_tasks", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerInvocations.WithLabelValues("google_tasks", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("list_tasks", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelRetries.WithLabelValues("gemini-2.0-flash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("supervisor")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Decision("x")
		m.WorkerInvocation("x", 1, nil)
		m.ToolCall("x", nil)
		m.ModelRetry("x")
		m.RunFinished("x", 1)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Decision("google_calendar")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `agentdesk_supervisor_decisions_total{destination="google_calendar"} 1`))
}
