package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("mail:send").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("mail:send").End(boom), boom)
	skipped := fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	assert.ErrorIs(t, m.Track("mail:send").End(skipped), asynq.SkipRetry)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("mail:send", StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("mail:send", StatusFailure)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("mail:send", StatusDropped)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("mail:send").End(nil))
	m.AddDelivery("sent")
	m.AddPurged(3)
}

func TestAddDeliveryAndPurged(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDelivery("sent")
	m.AddDelivery("sent")
	m.AddDelivery("")
	m.AddPurged(4)
	m.AddPurged(0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.deliveries.WithLabelValues("sent")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.purged))
}

func TestDefaultRegistererIsShared(t *testing.T) {
	assert.Same(t, NewMetrics(nil), NewMetrics(nil))
}
