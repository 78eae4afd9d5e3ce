package dispatch

import (
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/metrics"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

// protectedMethods require an authenticated session. Rejection is silent at
// the transport layer: the client learns from a timeout, never from an error
// frame, so an unauthenticated caller cannot probe which methods exist.
var protectedMethods = map[string]struct{}{
	"orders.place":       {},
	"orders.cancel":      {},
	"orders.status":      {},
	"orders.history":     {},
	"history.query":      {},
	"history.latest":     {},
	"market.subscribe":   {},
	"market.unsubscribe": {},
	"market.list":        {},
	"metrics.get":        {},
	"alerts.subscribe":   {},
	"alerts.list":        {},
	"alerts.register":    {},
	"alerts.disable":     {},
}

// TraceMiddleware logs method entry/exit and counts active connections on the
// hello handshake.
func TraceMiddleware(collector *metrics.Collector) Middleware {
	return func(ctx *Ctx, next func()) {
		log := logger.Conn(ctx.Session.ID())
		log.DebugF("Request: %s", ctx.Method)
		if ctx.Method == "hello" {
			collector.ConnectionOpened()
		}
		next()
		log.DebugF("Response sent for: %s", ctx.Method)
	}
}

// AuthMiddleware gates the protected method set on the authenticated session
// field.
func AuthMiddleware() Middleware {
	return func(ctx *Ctx, next func()) {
		if _, protected := protectedMethods[ctx.Method]; !protected {
			next()
			return
		}

		log := logger.Conn(ctx.Session.ID())
		authenticated, ok := ctx.Session.GetStringField(session.FieldAuthenticated)
		if !ok {
			log.DebugF("Rejected %s: no authenticated field", ctx.Method)
			return
		}
		if authenticated != "true" {
			log.DebugF("Rejected %s: session not authenticated (value %q)", ctx.Method, authenticated)
			return
		}
		next()
	}
}
