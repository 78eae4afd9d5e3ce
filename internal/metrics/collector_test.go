package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersAccumulate(t *testing.T) {
	c := NewCollector(1)

	c.OrderPlaced()
	c.OrderPlaced()
	c.OrderCancelled()
	c.ErrorOccurred()
	c.ConnectionOpened()

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.TotalOrders)
	assert.Equal(t, int64(1), snap.TotalCancels)
	assert.Equal(t, int64(1), snap.TotalErrors)
}

func TestSnapshotRanges(t *testing.T) {
	c := NewCollector(7)
	for i := 0; i < 100; i++ {
		snap := c.Snapshot()
		assert.GreaterOrEqual(t, snap.LatencyMs, 0.5)
		assert.LessOrEqual(t, snap.LatencyMs, 50.0)
		assert.GreaterOrEqual(t, snap.P95Latency, snap.LatencyMs)
		assert.GreaterOrEqual(t, snap.ConnCount, 50)
		assert.GreaterOrEqual(t, snap.Throughput, 0.0)
	}
}

func TestErrorRate(t *testing.T) {
	c := NewCollector(1)
	for i := 0; i < 8; i++ {
		c.OrderPlaced()
	}
	c.OrderCancelled()
	c.OrderCancelled()
	c.ErrorOccurred()

	snap := c.Snapshot()
	assert.InDelta(t, 0.1, snap.ErrorRate, 1e-9)
}
