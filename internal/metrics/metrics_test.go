package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/firecheck/internal/domain"
)

func TestFindingCounters(t *testing.T) {
	m := New()

	m.FindingAdded(domain.CategoryBuilding)
	m.FindingAdded(domain.CategoryBuilding)
	m.FindingAdded(domain.CategoryEquipment)
	m.FindingDeleted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.findingsAdded.WithLabelValues(string(domain.CategoryBuilding))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.findingsAdded.WithLabelValues(string(domain.CategoryEquipment))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.findingsDeleted))
}

func TestReportRendered(t *testing.T) {
	m := New()

	m.ReportRendered(150*time.Millisecond, 2)
	m.ReportRendered(10*time.Millisecond, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reportsRendered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.photoFallbacks))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FindingAdded(domain.CategoryBuilding)
		m.FindingDeleted()
		m.ReportRendered(time.Second, 1)
		m.HTTPRequest(http.MethodGet, http.StatusOK, time.Millisecond)
	})
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.HTTPRequest(http.MethodPost, http.StatusUnprocessableEntity, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `firecheck_http_requests_total{method="POST",status="422"} 1`))
	assert.Contains(t, string(body), "firecheck_http_request_duration_seconds")
}
