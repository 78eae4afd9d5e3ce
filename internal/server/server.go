// Package server wires the gateway together: session store, QoS engine,
// rooms, dispatcher, handler surface, history backend and the market data
// simulator.
package server

import (
	"time"

	"github.com/efecan0/trading-gateway-go/internal/alerts"
	"github.com/efecan0/trading-gateway-go/internal/config"
	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/event"
	"github.com/efecan0/trading-gateway-go/internal/handlers"
	"github.com/efecan0/trading-gateway-go/internal/history"
	"github.com/efecan0/trading-gateway-go/internal/idempotency"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/marketdata"
	"github.com/efecan0/trading-gateway-go/internal/metrics"
	"github.com/efecan0/trading-gateway-go/internal/qos"
	"github.com/efecan0/trading-gateway-go/internal/risk"
	"github.com/efecan0/trading-gateway-go/internal/rooms"
	"github.com/efecan0/trading-gateway-go/internal/session"
	"github.com/efecan0/trading-gateway-go/internal/transport"
)

// queueEnqueuer adapts the QoS engine for room broadcasts: every member gets
// the payload as a fresh DATA frame on its own queue.
type queueEnqueuer struct {
	engine *qos.Engine
}

func (q *queueEnqueuer) Enqueue(sessionID, method string, payload []byte) error {
	_, err := q.engine.Queue(sessionID).Send(method, payload)
	return err
}

// StartServer builds the full pipeline and blocks serving connections.
func StartServer(cfg config.Config) error {
	cleaner := event.NewCleaner()

	store := session.NewStore(time.Duration(cfg.Session.TTLMs) * time.Millisecond)

	engine := qos.NewEngine(qos.Options{
		BaseRetry:   time.Duration(cfg.QoS.BaseRetryMs) * time.Millisecond,
		MaxBackoff:  time.Duration(cfg.QoS.MaxBackoffMs) * time.Millisecond,
		MaxAttempts: cfg.QoS.MaxRetry,
	})
	cleaner.Add("qos engine", engine)

	registry := rooms.NewRegistry(&queueEnqueuer{engine: engine})

	cache := idempotency.NewCache(time.Duration(cfg.Idempotency.TTLMs) * time.Millisecond)

	var repo history.Repository
	clickhouse := history.NewClickHouseRepositoryFromConfig(cfg)
	if err := clickhouse.Connect(); err != nil {
		logger.ErrorF("ClickHouse unavailable, history methods degraded, details: %v", err)
	} else {
		repo = clickhouse
	}

	var archive history.ArchiveSink
	if cfg.Archive.Enabled {
		mongoArchive, err := history.ConnectArchive(cfg)
		if err != nil {
			logger.ErrorF("Archive unavailable, continuing without it, details: %v", err)
		} else {
			archive = mongoArchive
			cleaner.Add("order log archive", mongoArchive)
		}
	}

	writer := history.NewAsyncWriter(repo, archive)
	cleaner.Add("order log writer", writer)

	collector := metrics.NewCollector(time.Now().UnixNano())
	alertEngine := alerts.NewEngine()

	dispatcher := dispatch.NewDispatcher()
	dispatcher.Use(dispatch.TraceMiddleware(collector))
	dispatcher.Use(dispatch.AuthMiddleware())

	deps := &handlers.Deps{
		Store:   store,
		Rooms:   registry,
		Cache:   cache,
		Risk:    risk.NewValidator(),
		Repo:    repo,
		Writer:  writer,
		Metrics: collector,
		Alerts:  alertEngine,
	}
	deps.Register(dispatcher)

	simulator := marketdata.NewSimulator(registry, time.Second, time.Now().UnixNano())
	simulator.Start()
	cleaner.Add("market data simulator", simulator)

	sweeper := newSweeper(store, engine, registry)
	sweeper.Start()
	cleaner.Add("session sweeper", sweeper)

	inspector := transport.NewTradingHandshakeInspector(cfg.JwtSecret)
	endpoint := transport.NewEndpoint(store, engine, dispatcher, inspector, transport.Options{
		PingInterval:    time.Duration(cfg.PingIntervalSec) * time.Second,
		MaxMessageBytes: int64(cfg.MaxMessageBytes),
	})
	cleaner.Add("transport endpoint", endpoint)

	return endpoint.Start(cfg.Host, cfg.Port)
}
