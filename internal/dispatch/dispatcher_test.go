package dispatch

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efecan0/trading-gateway-go/internal/metrics"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

type replyCapture struct {
	mu      sync.Mutex
	methods []string
	bodies  [][]byte
}

func (r *replyCapture) fn(method string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = append(r.methods, method)
	r.bodies = append(r.bodies, payload)
	return nil
}

func newTestCtx(t *testing.T, store *session.Store, method string, capture *replyCapture) *Ctx {
	t.Helper()
	ses, _ := store.LookupOrCreate(session.Identity{ClientID: "c-" + method + "-" + t.Name(), DeviceID: 1})
	return NewCtx(ses, method, nil, capture.fn)
}

func TestDispatchRoutesToHandler(t *testing.T) {
	d := NewDispatcher()
	store := session.NewStore(time.Second)
	capture := &replyCapture{}

	d.Register("ping", func(payload []byte, ctx *Ctx) {
		ctx.Reply(map[string]string{"pong": "yes"})
	})

	d.Dispatch(newTestCtx(t, store, "ping", capture))

	require.Len(t, capture.methods, 1)
	assert.Equal(t, "ping", capture.methods[0])

	var body map[string]string
	require.NoError(t, json.Unmarshal(capture.bodies[0], &body))
	assert.Equal(t, "yes", body["pong"])
}

func TestUnknownMethodIsDropped(t *testing.T) {
	d := NewDispatcher()
	store := session.NewStore(time.Second)
	capture := &replyCapture{}

	d.Dispatch(newTestCtx(t, store, "nope", capture))
	assert.Empty(t, capture.methods)
}

func TestMiddlewareOrderAndShortCircuit(t *testing.T) {
	d := NewDispatcher()
	store := session.NewStore(time.Second)
	capture := &replyCapture{}

	var trail []string
	d.Use(func(ctx *Ctx, next func()) {
		trail = append(trail, "first")
		next()
	})
	d.Use(func(ctx *Ctx, next func()) {
		trail = append(trail, "second")
		// no next(): dispatch halts with no error frame
	})
	d.Register("guarded", func(payload []byte, ctx *Ctx) {
		trail = append(trail, "handler")
	})

	d.Dispatch(newTestCtx(t, store, "guarded", capture))

	assert.Equal(t, []string{"first", "second"}, trail)
	assert.Empty(t, capture.methods, "short-circuit must not send an automatic error")
}

func TestPanicBecomesInternalError(t *testing.T) {
	d := NewDispatcher()
	store := session.NewStore(time.Second)
	capture := &replyCapture{}

	d.Register("boom", func(payload []byte, ctx *Ctx) {
		panic("kaput")
	})

	d.Dispatch(newTestCtx(t, store, "boom", capture))

	require.Len(t, capture.bodies, 1)
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(capture.bodies[0], &body))
	assert.Equal(t, "INTERNAL_ERROR", body["error"]["code"])
}

func TestPanicAfterReplyIsSuppressed(t *testing.T) {
	d := NewDispatcher()
	store := session.NewStore(time.Second)
	capture := &replyCapture{}

	d.Register("boom", func(payload []byte, ctx *Ctx) {
		ctx.Reply(map[string]string{"ok": "true"})
		panic("late")
	})

	d.Dispatch(newTestCtx(t, store, "boom", capture))
	assert.Len(t, capture.bodies, 1, "the enqueued reply stands, no error frame follows")
}

func TestAuthMiddlewareGatesProtectedMethods(t *testing.T) {
	d := NewDispatcher()
	store := session.NewStore(time.Second)
	d.Use(AuthMiddleware())

	var calls []string
	for _, m := range []string{"hello", "orders.place", "metrics.get"} {
		method := m
		d.Register(method, func(payload []byte, ctx *Ctx) {
			calls = append(calls, method)
		})
	}

	capture := &replyCapture{}
	ses, _ := store.LookupOrCreate(session.Identity{ClientID: "c1", DeviceID: 1})

	// Unauthenticated: hello passes, protected methods are silently dropped.
	d.Dispatch(NewCtx(ses, "hello", nil, capture.fn))
	d.Dispatch(NewCtx(ses, "orders.place", nil, capture.fn))
	d.Dispatch(NewCtx(ses, "metrics.get", nil, capture.fn))
	assert.Equal(t, []string{"hello"}, calls)

	ses.SetField(session.FieldAuthenticated, session.StringField("false"), true)
	d.Dispatch(NewCtx(ses, "orders.place", nil, capture.fn))
	assert.Equal(t, []string{"hello"}, calls)

	ses.SetField(session.FieldAuthenticated, session.StringField("true"), true)
	d.Dispatch(NewCtx(ses, "orders.place", nil, capture.fn))
	d.Dispatch(NewCtx(ses, "metrics.get", nil, capture.fn))
	assert.Equal(t, []string{"hello", "orders.place", "metrics.get"}, calls)
}

func TestTraceMiddlewareCountsHello(t *testing.T) {
	d := NewDispatcher()
	store := session.NewStore(time.Second)
	collector := metrics.NewCollector(1)
	d.Use(TraceMiddleware(collector))

	d.Register("hello", func(payload []byte, ctx *Ctx) {})
	d.Register("metrics.get", func(payload []byte, ctx *Ctx) {})

	capture := &replyCapture{}
	d.Dispatch(newTestCtx(t, store, "hello", capture))
	d.Dispatch(newTestCtx(t, store, "metrics.get", capture))

	assert.Equal(t, int64(1), collector.ActiveConnections())
}
