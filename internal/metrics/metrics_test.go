package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordProcessing("processed", 3, true, time.Second)
		m.RecordEmbedding("ok", time.Millisecond)
		m.RecordSearch("ok", 2, time.Millisecond)
		m.RecordStoreOp("insert_chunks", nil)
	})
}

func TestRecordProcessing(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordProcessing("processed", 4, false, 2*time.Second)
	m.RecordProcessing("failed", 0, true, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsProcessedTotal.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsProcessedTotal.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ChunksCreatedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunkerFallbacksTotal))
}

func TestRecordEmbedding(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordEmbedding("ok", time.Millisecond)
	m.RecordEmbedding("fallback", time.Millisecond)
	m.RecordEmbedding("cache", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingFallbacksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingCacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequestsTotal.WithLabelValues("ok")))
}

func TestRecordStoreOp(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordStoreOp("update_status", nil)
	m.RecordStoreOp("update_status", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("update_status", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("update_status", "error")))
}

func TestNewMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	require.Panics(t, func() { NewMetrics(reg) })
}
