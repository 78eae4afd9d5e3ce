// Package transport terminates the WebSocket connections, runs the handshake
// inspector and binds each connection to its session and QoS queue.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/frame"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/qos"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

type Options struct {
	PingInterval    time.Duration
	MaxMessageBytes int64
}

type Endpoint struct {
	store      *session.Store
	engine     *qos.Engine
	dispatcher *dispatch.Dispatcher
	inspector  HandshakeInspector
	opts       Options

	upgrader websocket.Upgrader
	server   *http.Server
}

func NewEndpoint(store *session.Store, engine *qos.Engine, dispatcher *dispatch.Dispatcher,
	inspector HandshakeInspector, opts Options) *Endpoint {
	return &Endpoint{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		inspector:  inspector,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn serializes writes: the QoS retry loop, the dispatcher and broadcasts
// all push frames at the same connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (e *Endpoint) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := e.inspector.Extract(r)
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}
	if !e.inspector.Authorize(identity, r) {
		http.Error(w, "not authorized", http.StatusForbidden)
		return
	}

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnF("Upgrade failed for %s, details: %v", r.RemoteAddr, err)
		return
	}

	ses, created := e.store.LookupOrCreate(identity)
	connID := ses.ID()
	ws := &wsConn{conn: conn}
	log := logger.Conn(connID)

	log.InfoF("Client %s connected (created=%v)", identity.ClientID, created)

	queue := e.engine.Queue(connID)

	var attachEpoch uint64
	defer func() {
		log.DebugF("Connection closed")
		// A reconnect may already own the session; only the active
		// connection arms the TTL on its way out.
		if queue.Detach(attachEpoch) {
			e.store.Disconnect(connID)
		}
		if err := conn.Close(); err != nil && !isNetClosedError(err) {
			log.WarnF("Error occured while closing connection, details: %v", err)
		}
	}()

	conn.SetReadLimit(e.opts.MaxMessageBytes)
	deadline := e.opts.PingInterval + 10*time.Second
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go e.pingLoop(ws, log, pingStop)

	// Bind the queue last: Attach replays every pending frame in msgId order
	// before the loop below accepts anything new from this connection.
	attachEpoch = queue.Attach(ws.send)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			handleReadError(log, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		decoded, err := frame.Decode(data)
		if err != nil {
			// Malformed input: drop the frame, no reply.
			log.WarnF("Dropping malformed frame, details: %v", err)
			continue
		}

		switch f := decoded.(type) {
		case *frame.AckFrame:
			log.DebugF("ACK for frame %d", f.MsgID)
			queue.Ack(f.MsgID)
		case *frame.DataFrame:
			// The ACK goes out before the handler runs.
			if err := ws.send(frame.EncodeAck(f.MsgID)); err != nil {
				log.WarnF("Fail to send ACK for frame %d, details: %v", f.MsgID, err)
			}
			ctx := dispatch.NewCtx(ses, f.Method, f.Payload, func(method string, payload []byte) error {
				_, err := queue.Send(method, payload)
				return err
			})
			e.dispatcher.Dispatch(ctx)
		}
	}
}

func (e *Endpoint) pingLoop(ws *wsConn, log logger.ConnLogger, stop <-chan struct{}) {
	ticker := time.NewTicker(e.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				log.DebugF("Ping failed, details: %v", err)
				return
			}
		}
	}
}

// Start listens on addr and serves upgrade requests until Shutdown.
func (e *Endpoint) Start(host string, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handleWS)

	addr := fmt.Sprintf("%s:%d", host, port)
	e.server = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("trading gateway listen error: %w", err)
	}
	logger.InfoF("Trading gateway listening on %s", ln.Addr().String())

	if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Invoke stops accepting connections; registered with the shutdown cleaner.
func (e *Endpoint) Invoke(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}

func isNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func handleReadError(log logger.ConnLogger, err error) {
	switch {
	case errors.Is(err, io.EOF), websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		log.InfoF("Client close connection")
	case os.IsTimeout(err):
		log.WarnF("Reading timeout")
	default:
		log.ErrorF("Error occured while reading frame, details: %v", err)
	}
}
