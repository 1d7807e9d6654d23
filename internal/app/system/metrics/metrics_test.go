package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveTransition("pending", "active")
	m.SetStatusCounts(map[string]int64{"active": 1})
	m.ObserveAudit("create", "info", true)
	m.ObserveMassDelete()
	m.ObserveIntegrityFailure()
	m.ObserveNotification("connection_requested", "sent")
	m.ObserveJob("audit_purge", time.Second, nil)
}

func TestObserveTransition(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveTransition("", "pending")
	m.ObserveTransition("pending", "active")
	m.ObserveTransition("pending", "active")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelationshipTransitions.WithLabelValues("none", "pending")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelationshipTransitions.WithLabelValues("pending", "active")))
}

func TestObserveAudit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveAudit("soft_delete_relationship", "info", false)
	m.ObserveAudit("soft_delete_relationship", "info", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditEntries.WithLabelValues("soft_delete_relationship", "info")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures))
}

func TestSetStatusCounts_Replaces(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.SetStatusCounts(map[string]int64{"active": 3, "pending": 1})
	m.SetStatusCounts(map[string]int64{"active": 2})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelationshipsByStatus.WithLabelValues("active")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RelationshipsByStatus))
}

func TestObserveJob(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveJob("integrity_sweep", 10*time.Millisecond, nil)
	m.ObserveJob("integrity_sweep", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("integrity_sweep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobErrors.WithLabelValues("integrity_sweep")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveMassDelete()

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "coachhub_mass_delete_detected_total 1"))
}
