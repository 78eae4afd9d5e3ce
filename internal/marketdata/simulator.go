// Package marketdata generates the simulated tick stream and publishes it
// into the per-symbol market rooms.
package marketdata

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/rooms"
)

type symbolSpec struct {
	symbol          string
	basePrice       float64
	volatility      float64
	baseVolume      int
	volumeVariation int
}

// Per-symbol volatility and volume profiles.
var specs = []symbolSpec{
	{"ETH-USD", 2500.0, 0.003, 30000, 15000},
	{"BTC-USD", 45000.0, 0.002, 50000, 20000},
	{"ADA-USD", 0.45, 0.004, 10000, 5000},
	{"SOL-USD", 95.0, 0.004, 10000, 5000},
	{"DOGE-USD", 0.08, 0.005, 80000, 30000},
	{"AVAX-USD", 25.0, 0.004, 15000, 8000},
	{"MATIC-USD", 0.75, 0.005, 25000, 12000},
	{"LINK-USD", 12.5, 0.003, 20000, 10000},
}

// Tick is the market_data broadcast payload. Seq is one shared monotonic
// counter so clients can reorder after a reconnect.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	Volume    int     `json:"volume"`
	Seq       int32   `json:"seq"`
	Timestamp int64   `json:"timestamp"`
}

type Simulator struct {
	rooms    *rooms.Registry
	interval time.Duration

	seq atomic.Int32

	mu  sync.Mutex
	rng *rand.Rand

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSimulator(registry *rooms.Registry, interval time.Duration, seed int64) *Simulator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulator{
		rooms:    registry,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Simulator) Start() {
	logger.Info("Market data simulation started")
	go s.run()
}

func (s *Simulator) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			logger.Info("Market data simulation stopped")
			return
		case <-ticker.C:
			s.tickAll()
		}
	}
}

func (s *Simulator) tickAll() {
	for _, spec := range specs {
		tick := s.generate(spec)
		s.Publish(tick.Symbol, tick)
	}
}

func (s *Simulator) generate(spec symbolSpec) Tick {
	s.mu.Lock()
	change := (s.rng.Float64()*2 - 1) * spec.volatility
	volumeDelta := s.rng.Intn(2*spec.volumeVariation+1) - spec.volumeVariation
	s.mu.Unlock()

	price := spec.basePrice * (1.0 + change)
	if price <= 0 {
		price = spec.basePrice
	}

	volume := spec.baseVolume + volumeDelta
	if volume < 1000 {
		volume = 1000
	}

	return Tick{
		Symbol:    spec.symbol,
		Price:     price,
		Change:    ((price - spec.basePrice) / spec.basePrice) * 100.0,
		Volume:    volume,
		Seq:       s.seq.Add(1),
		Timestamp: time.Now().UnixMilli(),
	}
}

// Publish broadcasts one tick to the symbol's room. External feeds call this
// directly; the simulator is just one producer.
func (s *Simulator) Publish(symbol string, tick Tick) {
	data, err := json.Marshal(tick)
	if err != nil {
		logger.ErrorF("Failed to marshal tick for %s, details: %v", symbol, err)
		return
	}
	s.rooms.Broadcast(rooms.MarketRoom(symbol), "market_data", data)
}

// Invoke stops the simulator; registered with the shutdown cleaner.
func (s *Simulator) Invoke(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
