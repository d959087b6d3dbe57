package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordTransition(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordTransition(OutcomeCommitted, 10*time.Millisecond)
	collector.RecordTransition(OutcomeCommitted, 5*time.Millisecond)
	collector.RecordTransition(OutcomeConflict, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(collector.transitionsTotal.WithLabelValues(OutcomeCommitted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(collector.transitionsTotal.WithLabelValues(OutcomeConflict)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(collector.transitionDuration))
}

func TestCollector_RecordBulkTransition(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordBulkTransition(5, 2, time.Millisecond)
	collector.RecordBulkTransition(3, 0, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(collector.bulkTransitionsTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(collector.bulkRejectionsTotal), 0)
}

func TestCollector_RecordNodeDeletion(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordNodeDeletion(2, 3)

	assert.InDelta(t, 2, testutil.ToFloat64(collector.nodesDeletedTotal), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(collector.itemsResetTotal), 0)
}

func TestNewCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Panics(t, func() { NewCollector(reg) })
}
