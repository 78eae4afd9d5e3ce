package handlers

import (
	"fmt"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/domain"
)

func (d *Deps) handleHistoryQuery(payload []byte, ctx *dispatch.Ctx) {
	request := parsePayload(payload)

	symbol := stringValue(request, "symbol", "")
	fromTsMs := int64Value(request, "fromTs", 0)
	toTsMs := int64Value(request, "toTs", 0)
	interval := stringValue(request, "interval", "M1")
	limit := intValue(request, "limit", 1000)

	// The wire carries milliseconds; the store works in seconds.
	fromTs := fromTsMs / 1000
	toTs := toTsMs / 1000

	if symbol == "" || fromTs == 0 || toTs == 0 {
		d.replyError(ctx, "INVALID_PARAMS", "Missing required parameters: symbol, fromTs, toTs")
		return
	}

	if d.Repo == nil {
		d.replyError(ctx, "SERVICE_UNAVAILABLE", "History repository not initialized")
		return
	}

	query := domain.HistoryQuery{
		FromTs:   fromTs,
		ToTs:     toTs,
		Interval: domain.IntervalFromString(interval),
		Limit:    limit,
	}

	candles, err := d.Repo.Fetch(symbol, query)
	if err != nil {
		d.replyError(ctx, "QUERY_FAILED", fmt.Sprintf("Failed to fetch historical data: %v", err))
		return
	}
	if candles == nil {
		candles = []domain.Candle{}
	}

	ctx.Reply(map[string]interface{}{
		"symbol":   symbol,
		"candles":  candles,
		"count":    len(candles),
		"fromTs":   fromTs,
		"toTs":     toTs,
		"interval": interval,
	})
}

func (d *Deps) handleHistoryLatest(payload []byte, ctx *dispatch.Ctx) {
	if d.Repo == nil {
		d.replyError(ctx, "SERVICE_UNAVAILABLE", "History repository not initialized")
		return
	}

	candles, err := d.Repo.Latest(KnownSymbols, len(KnownSymbols))
	if err != nil {
		d.replyError(ctx, "QUERY_FAILED", fmt.Sprintf("Failed to fetch latest prices: %v", err))
		return
	}

	latest := make(map[string]float64)
	for _, candle := range candles {
		if _, seen := latest[candle.Symbol]; !seen {
			latest[candle.Symbol] = candle.Close
		}
	}

	if len(latest) == 0 {
		d.replyError(ctx, "NO_DATA", "No historical data available")
		return
	}

	ctx.Reply(map[string]interface{}{
		"latest":    latest,
		"timestamp": time.Now().UnixMilli(),
		"source":    "ClickHouse",
	})
}
