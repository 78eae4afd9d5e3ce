package handlers

import (
	"strings"

	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

func (d *Deps) handleMarketSubscribe(payload []byte, ctx *dispatch.Ctx) {
	request := parsePayload(payload)
	symbols := stringSlice(request, "symbols")

	if len(symbols) == 0 {
		d.replyError(ctx, "INVALID_PARAMS", "Symbols list is required")
		return
	}

	ses := ctx.Session

	// A subscribe replaces the whole set: leave every market room this
	// session is in before joining the requested ones.
	var leftRooms []string
	for _, room := range d.Rooms.RoomsOf(ses.ID()) {
		if strings.HasPrefix(room, "market:") {
			d.Rooms.Leave(room, ses.ID())
			leftRooms = append(leftRooms, room)
		}
	}
	if len(leftRooms) > 0 {
		logger.Conn(ses.ID()).DebugF("Left %d rooms for clean subscription", len(leftRooms))
	}

	subscribedRooms := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		room := MarketRoom(symbol)
		d.Rooms.Join(room, ses.ID())
		subscribedRooms = append(subscribedRooms, room)
	}

	ses.SetField(session.FieldSubscribedRooms, session.StringListField(subscribedRooms), true)

	if leftRooms == nil {
		leftRooms = []string{}
	}
	ctx.Reply(map[string]interface{}{
		"subscribed": symbols,
		"rooms":      subscribedRooms,
		"leftRooms":  leftRooms,
		"message":    "Successfully subscribed to market data - cleaned up existing rooms and joined new ones",
		"features": map[string]string{
			"roomManagement":    "true",
			"realTimeBroadcast": "true",
			"sessionState":      "persisted",
			"cleanupExisting":   "true",
		},
	})
}

func (d *Deps) handleMarketUnsubscribe(payload []byte, ctx *dispatch.Ctx) {
	request := parsePayload(payload)
	symbols := stringSlice(request, "symbols")

	ses := ctx.Session
	unsubscribedRooms := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		room := MarketRoom(symbol)
		d.Rooms.Leave(room, ses.ID())
		unsubscribedRooms = append(unsubscribedRooms, room)
	}

	// Keep the stored subscription list in sync with the registry.
	var remaining []string
	for _, room := range d.Rooms.RoomsOf(ses.ID()) {
		if strings.HasPrefix(room, "market:") {
			remaining = append(remaining, room)
		}
	}
	ses.SetField(session.FieldSubscribedRooms, session.StringListField(remaining), true)

	ctx.Reply(map[string]interface{}{
		"unsubscribed": symbols,
		"rooms":        unsubscribedRooms,
		"message":      "Successfully unsubscribed from market data",
	})
}

func (d *Deps) handleMarketList(payload []byte, ctx *dispatch.Ctx) {
	subscribedRooms := []string{}
	if v, ok := ctx.Session.GetField(session.FieldSubscribedRooms); ok && v.Kind == session.KindStringList {
		subscribedRooms = v.List
	}

	ctx.Reply(map[string]interface{}{
		"subscribedRooms":  subscribedRooms,
		"availableSymbols": KnownSymbols,
		"message":          "Market data subscription list retrieved from session state",
	})
}
