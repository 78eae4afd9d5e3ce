package server

import (
	"context"
	"sync"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/qos"
	"github.com/efecan0/trading-gateway-go/internal/rooms"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

// sweeper evicts TTL-expired sessions: their pending queues are discarded and
// their room membership dropped, with no notification to anyone.
type sweeper struct {
	store    *session.Store
	engine   *qos.Engine
	registry *rooms.Registry

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newSweeper(store *session.Store, engine *qos.Engine, registry *rooms.Registry) *sweeper {
	return &sweeper{
		store:    store,
		engine:   engine,
		registry: registry,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *sweeper) Start() {
	go s.run()
}

func (s *sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			for _, id := range s.store.Sweep() {
				s.engine.Drop(id)
				s.registry.LeaveAll(id)
				logger.Conn(id).DebugF("Session swept, pending discarded")
			}
		}
	}
}

func (s *sweeper) Invoke(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
