// Package dispatch routes decoded method invocations through the middleware
// chain to their registered handler and serializes replies back through the
// QoS layer.
package dispatch

import (
	"encoding/json"
	"sync"

	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

// ReplyFunc enqueues a reply envelope for the invoking session.
type ReplyFunc func(method string, payload []byte) error

// Ctx carries everything a handler needs for one invocation. Handlers hold it
// only for the duration of the call.
type Ctx struct {
	Session *session.Session
	Method  string
	Payload []byte

	reply   ReplyFunc
	replied bool
	mu      sync.Mutex
}

func NewCtx(ses *session.Session, method string, payload []byte, reply ReplyFunc) *Ctx {
	return &Ctx{Session: ses, Method: method, Payload: payload, reply: reply}
}

// Reply marshals the response object to JSON and enqueues it under the
// request's method.
func (c *Ctx) Reply(response interface{}) {
	data, err := json.Marshal(response)
	if err != nil {
		logger.Conn(c.Session.ID()).ErrorF("Failed to marshal %s response, details: %v", c.Method, err)
		return
	}
	c.mu.Lock()
	c.replied = true
	c.mu.Unlock()
	if err := c.reply(c.Method, data); err != nil {
		logger.Conn(c.Session.ID()).WarnF("Failed to enqueue %s reply, details: %v", c.Method, err)
	}
}

// ReplyError sends the standard {error:{code,message}} object.
func (c *Ctx) ReplyError(code, message string) {
	c.Reply(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func (c *Ctx) Replied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replied
}

type Handler func(payload []byte, ctx *Ctx)

// Middleware short-circuits by returning without calling next. The dispatcher
// sends no automatic error frame in that case.
type Middleware func(ctx *Ctx, next func())

type Dispatcher struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	middleware []Middleware
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(method string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = handler
}

func (d *Dispatcher) Use(mw Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middleware = append(d.middleware, mw)
}

// Dispatch runs the middleware chain and the handler. Panics never reach the
// IO layer: a handler that blows up before replying produces INTERNAL_ERROR,
// one that already replied is suppressed.
func (d *Dispatcher) Dispatch(ctx *Ctx) {
	d.mu.RLock()
	handler, ok := d.handlers[ctx.Method]
	chain := append([]Middleware(nil), d.middleware...)
	d.mu.RUnlock()

	if !ok {
		logger.Conn(ctx.Session.ID()).WarnF("Unknown method %s, dropping", ctx.Method)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Conn(ctx.Session.ID()).ErrorF("Handler %s panicked, details: %v", ctx.Method, r)
			if !ctx.Replied() {
				ctx.ReplyError("INTERNAL_ERROR", "request failed")
			}
		}
	}()

	var run func(i int)
	run = func(i int) {
		if i < len(chain) {
			chain[i](ctx, func() { run(i + 1) })
			return
		}
		handler(ctx.Payload, ctx)
	}
	run(0)
}
