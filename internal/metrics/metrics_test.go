package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordJob("ready")
	m.RecordJob("ready")
	m.RecordDocument("pdf", "ok", 4)
	m.RecordMutation("edit", nil)
	m.RecordMutation("edit", errors.New("boom"))
	m.ObserveReconcile(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestJobsTotal.WithLabelValues("ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsIngestedTotal.WithLabelValues("pdf", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SegmentsWrittenTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentMutationsTotal.WithLabelValues("edit", "error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordJob("failed")
		m.RecordDocument("word", "error", 0)
		m.RecordMutation("add", nil)
		m.ObserveReconcile(time.Now())
		m.SetQueueDepth(3)
	})
}
