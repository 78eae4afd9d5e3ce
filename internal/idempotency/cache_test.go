package idempotency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efecan0/trading-gateway-go/internal/domain"
)

func TestGetMissThenPut(t *testing.T) {
	c := NewCache(time.Minute)

	_, ok := c.Get("K1")
	assert.False(t, ok)

	c.Put("K1", domain.OrderResult{Status: domain.StatusAck, OrderID: "ORD_1", EchoKey: "K1"})
	got, ok := c.Get("K1")
	require.True(t, ok)
	assert.Equal(t, "ORD_1", got.OrderID)
}

func TestPutOverwritesUnconditionally(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put("K1", domain.OrderResult{OrderID: "ORD_1"})
	c.Put("K1", domain.OrderResult{OrderID: "ORD_2"})

	got, _ := c.Get("K1")
	assert.Equal(t, "ORD_2", got.OrderID)
}

func TestExpiredEntryEvictedOnRead(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	c.Put("K1", domain.OrderResult{OrderID: "ORD_1"})

	time.Sleep(60 * time.Millisecond)
	_, ok := c.Get("K1")
	assert.False(t, ok)
}

func TestBindComputesExactlyOnce(t *testing.T) {
	c := NewCache(time.Minute)
	var computations atomic.Int32

	compute := func() domain.OrderResult {
		computations.Add(1)
		time.Sleep(10 * time.Millisecond) // widen the race window
		return domain.OrderResult{Status: domain.StatusAck, OrderID: "ORD_9", EchoKey: "K1"}
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]domain.OrderResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Bind("K1", compute)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), computations.Load())
	for _, r := range results {
		assert.Equal(t, "ORD_9", r.OrderID)
	}
}

func TestBindReportsReplay(t *testing.T) {
	c := NewCache(time.Minute)

	first, replay := c.Bind("K1", func() domain.OrderResult {
		return domain.OrderResult{OrderID: "ORD_1", EchoKey: "K1"}
	})
	assert.False(t, replay)

	second, replay := c.Bind("K1", func() domain.OrderResult {
		t.Fatal("compute must not run on replay")
		return domain.OrderResult{}
	})
	assert.True(t, replay)
	assert.Equal(t, first, second)
}
