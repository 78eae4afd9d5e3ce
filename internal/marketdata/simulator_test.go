package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efecan0/trading-gateway-go/internal/rooms"
)

type tickRecorder struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newTickRecorder() *tickRecorder {
	return &tickRecorder{payloads: make(map[string][][]byte)}
}

func (r *tickRecorder) Enqueue(sessionID, method string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[sessionID] = append(r.payloads[sessionID], payload)
	return nil
}

func TestPublishReachesSubscribersOnly(t *testing.T) {
	recorder := newTickRecorder()
	registry := rooms.NewRegistry(recorder)
	registry.Join(rooms.MarketRoom("BTC-USD"), "s1")
	registry.Join(rooms.MarketRoom("ETH-USD"), "s2")

	sim := NewSimulator(registry, time.Second, 1)
	sim.Publish("BTC-USD", Tick{Symbol: "BTC-USD", Price: 45000, Seq: 1, Timestamp: 1})

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Len(t, recorder.payloads["s1"], 1)
	assert.Empty(t, recorder.payloads["s2"])
}

func TestTicksCarryMonotonicSeqAndShape(t *testing.T) {
	recorder := newTickRecorder()
	registry := rooms.NewRegistry(recorder)
	registry.Join(rooms.MarketRoom("BTC-USD"), "s1")

	sim := NewSimulator(registry, 5*time.Millisecond, 1)
	sim.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		recorder.mu.Lock()
		n := len(recorder.payloads["s1"])
		recorder.mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for ticks")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sim.Invoke(ctx))

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	var lastSeq int32
	for _, payload := range recorder.payloads["s1"][:3] {
		var tick Tick
		require.NoError(t, json.Unmarshal(payload, &tick))
		assert.Equal(t, "BTC-USD", tick.Symbol)
		assert.Greater(t, tick.Price, 0.0)
		assert.GreaterOrEqual(t, tick.Volume, 1000)
		assert.Greater(t, tick.Seq, lastSeq, "seq increases per tick")
		lastSeq = tick.Seq
	}
}

func TestGenerateStaysNearBasePrice(t *testing.T) {
	sim := NewSimulator(rooms.NewRegistry(newTickRecorder()), time.Second, 7)
	spec := specs[1] // BTC-USD, 0.2% volatility

	for i := 0; i < 100; i++ {
		tick := sim.generate(spec)
		assert.InDelta(t, spec.basePrice, tick.Price, spec.basePrice*spec.volatility*1.01)
	}
}
