package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerBeginCommit(t *testing.T) {
	tr := NewTracker(10)
	tr.Begin("txn-1")

	state := tr.Get("txn-1")
	require.NotNil(t, state)
	assert.Equal(t, StatusRunning, state.Status)

	tr.Commit("txn-1")
	state = tr.Get("txn-1")
	require.NotNil(t, state)
	assert.Equal(t, StatusCommitted, state.Status)
	assert.NotEmpty(t, state.Duration)
}

func TestTrackerFailRecordsError(t *testing.T) {
	tr := NewTracker(10)
	tr.Begin("txn-1")
	tr.Fail("txn-1", errors.New("boom"))

	state := tr.Get("txn-1")
	require.NotNil(t, state)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, "boom", state.Error)
}

func TestTrackerEvictsOldestAtCapacity(t *testing.T) {
	tr := NewTracker(2)
	tr.Begin("txn-1")
	tr.Begin("txn-2")
	tr.Begin("txn-3")

	assert.Len(t, tr.List(), 2)
	assert.Nil(t, tr.Get("txn-1"))
}

func TestTrackerStatsAggregatesByStatus(t *testing.T) {
	tr := NewTracker(10)
	tr.Begin("txn-1")
	tr.Commit("txn-1")
	tr.Begin("txn-2")
	tr.Fail("txn-2", errors.New("x"))
	tr.Begin("txn-3")

	stats := tr.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[StatusCommitted])
	assert.Equal(t, 1, stats.ByStatus[StatusFailed])
	assert.Equal(t, 1, stats.ByStatus[StatusRunning])
}
