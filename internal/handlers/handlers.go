// Package handlers implements the gateway's method surface, gluing session
// state, rooms and the idempotency cache to the external collaborators.
package handlers

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/efecan0/trading-gateway-go/internal/alerts"
	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/domain"
	"github.com/efecan0/trading-gateway-go/internal/history"
	"github.com/efecan0/trading-gateway-go/internal/idempotency"
	"github.com/efecan0/trading-gateway-go/internal/metrics"
	"github.com/efecan0/trading-gateway-go/internal/rooms"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

// KnownSymbols is the server's tradable symbol set.
var KnownSymbols = []string{"ETH-USD", "BTC-USD", "ADA-USD", "SOL-USD", "DOGE-USD", "AVAX-USD", "MATIC-USD", "LINK-USD"}

const AlertsRoom = rooms.AlertsRoom

func MarketRoom(symbol string) string {
	return rooms.MarketRoom(symbol)
}

// RiskValidator is the pre-trade validation boundary.
type RiskValidator interface {
	Validate(account domain.Account, positions []domain.Position, order domain.Order) bool
	Error() string
}

type Deps struct {
	Store   *session.Store
	Rooms   *rooms.Registry
	Cache   *idempotency.Cache
	Risk    RiskValidator
	Repo    history.Repository // nil when the history backend is down
	Writer  *history.AsyncWriter
	Metrics *metrics.Collector
	Alerts  *alerts.Engine
}

// Register wires every method handler into the dispatcher.
func (d *Deps) Register(dispatcher *dispatch.Dispatcher) {
	dispatcher.Register("hello", d.handleHello)
	dispatcher.Register("logout", d.handleLogout)

	dispatcher.Register("orders.place", d.handleOrdersPlace)
	dispatcher.Register("orders.cancel", d.handleOrdersCancel)
	dispatcher.Register("orders.status", d.handleOrdersStatus)
	dispatcher.Register("orders.history", d.handleOrdersHistory)

	dispatcher.Register("market.subscribe", d.handleMarketSubscribe)
	dispatcher.Register("market.unsubscribe", d.handleMarketUnsubscribe)
	dispatcher.Register("market.list", d.handleMarketList)

	dispatcher.Register("history.query", d.handleHistoryQuery)
	dispatcher.Register("history.latest", d.handleHistoryLatest)

	dispatcher.Register("metrics.get", d.handleMetricsGet)

	dispatcher.Register("alerts.subscribe", d.handleAlertsSubscribe)
	dispatcher.Register("alerts.list", d.handleAlertsList)
	dispatcher.Register("alerts.register", d.handleAlertsRegister)
	dispatcher.Register("alerts.disable", d.handleAlertsDisable)
}

// replyError sends the error object and counts it: every handler-level
// failure increments totalErrors and re-evaluates the alert thresholds.
func (d *Deps) replyError(ctx *dispatch.Ctx, code, message string) {
	d.Metrics.ErrorOccurred()
	d.checkAndBroadcastAlerts()
	ctx.ReplyError(code, message)
}

// parsePayload decodes a request payload. Clients send either a MsgPack map
// or a byte string wrapping MsgPack/JSON; everything decodes to one flat map.
func parsePayload(data []byte) map[string]interface{} {
	if len(data) == 0 {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := msgpack.Unmarshal(data, &m); err == nil && m != nil {
		return m
	}
	if err := json.Unmarshal(data, &m); err == nil && m != nil {
		return m
	}
	return map[string]interface{}{}
}

func stringValue(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatValue(m map[string]interface{}, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}

func intValue(m map[string]interface{}, key string, fallback int) int {
	if _, ok := m[key]; !ok {
		return fallback
	}
	return int(floatValue(m, key, float64(fallback)))
}

func int64Value(m map[string]interface{}, key string, fallback int64) int64 {
	if _, ok := m[key]; !ok {
		return fallback
	}
	return int64(floatValue(m, key, float64(fallback)))
}

func boolValue(m map[string]interface{}, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

func stringSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
