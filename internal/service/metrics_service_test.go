package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
	"github.com/noah-isme/mindcare-booking-api/pkg/jobs"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordTransition(models.EventBookingClaimed)
	m.RecordTransition(models.EventBookingClaimed)
	m.RecordRejection("claim", "SLOT_UNAVAILABLE")
	m.ObserveStore("claim", errors.New("boom"), time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.bookingTransitions.WithLabelValues(string(models.EventBookingClaimed))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.bookingRejections.WithLabelValues("claim", "SLOT_UNAVAILABLE")))
}

func TestMetricsServiceCacheHitRatio(t *testing.T) {
	m := NewMetricsService()
	assert.Zero(t, m.CacheHitRatio())

	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.InDelta(t, 2.0/3.0, m.CacheHitRatio(), 0.0001)
}

func TestMetricsServiceExposesQueueStats(t *testing.T) {
	m := NewMetricsService()
	m.RegisterQueue("booking-events", func() jobs.Stats { return jobs.Stats{Pending: 3, Processed: 7} })

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `queue_pending_jobs{queue="booking-events"} 3`)
	assert.Contains(t, w.Body.String(), `queue_processed_jobs_total{queue="booking-events"} 7`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordTransition(models.EventSlotPublished)
	m.RecordRejection("publish", "OVERLAP_CONFLICT")
	m.ObserveStore("publish", nil, time.Millisecond)
	m.RegisterQueue("q", func() jobs.Stats { return jobs.Stats{} })
	assert.Zero(t, m.CacheHitRatio())
}
