package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/frame"
	"github.com/efecan0/trading-gateway-go/internal/qos"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

const testSessionToken = "00112233445566778899aabbccddeeff"

func newTestEndpoint(t *testing.T) (*httptest.Server, *Endpoint) {
	t.Helper()

	store := session.NewStore(30 * time.Second)
	engine := qos.NewEngine(qos.Options{
		BaseRetry:   20 * time.Millisecond,
		MaxBackoff:  100 * time.Millisecond,
		MaxAttempts: 5,
	})
	t.Cleanup(func() {
		ctx, cancel := contextWithTimeout()
		defer cancel()
		_ = engine.Invoke(ctx)
	})

	dispatcher := dispatch.NewDispatcher()
	dispatcher.Register("echo", func(payload []byte, ctx *dispatch.Ctx) {
		ctx.Reply(map[string]string{"echo": string(payload)})
	})

	endpoint := NewEndpoint(store, engine, dispatcher, NewTradingHandshakeInspector("secret"), Options{
		PingInterval:    time.Second,
		MaxMessageBytes: 5 * 1024 * 1024,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", endpoint.handleWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, endpoint
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	decoded, err := frame.Decode(data)
	require.NoError(t, err)
	return decoded
}

func sendData(t *testing.T, conn *websocket.Conn, msgID uint64, method string, payload []byte) {
	t.Helper()
	data, err := frame.EncodeData(msgID, method, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
}

func TestHandshakeRejectsMissingIdentity(t *testing.T) {
	server, _ := newTestEndpoint(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAckPrecedesReply(t *testing.T) {
	server, _ := newTestEndpoint(t)
	conn := dial(t, server, "clientId=trader-1&token=trader&deviceId=42")

	sendData(t, conn, 9, "echo", []byte("hi"))

	first := readFrame(t, conn)
	ack, ok := first.(*frame.AckFrame)
	require.True(t, ok, "the ACK must cross the socket before the reply")
	assert.Equal(t, uint64(9), ack.MsgID)

	second := readFrame(t, conn)
	reply, ok := second.(*frame.DataFrame)
	require.True(t, ok)
	assert.Equal(t, "echo", reply.Method)
	assert.Equal(t, uint64(1), reply.MsgID)

	// Stop the server's retransmissions.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame.EncodeAck(reply.MsgID)))
}

func TestUnackedReplyIsRetransmittedIdentically(t *testing.T) {
	server, _ := newTestEndpoint(t)
	conn := dial(t, server, "clientId=trader-1&token=trader&deviceId=42")

	sendData(t, conn, 1, "echo", []byte("hi"))
	readFrame(t, conn) // ACK

	var copies [][]byte
	for len(copies) < 3 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		decoded, err := frame.Decode(data)
		require.NoError(t, err)
		if df, ok := decoded.(*frame.DataFrame); ok && df.MsgID == 1 {
			copies = append(copies, data)
		}
	}

	assert.Equal(t, copies[0], copies[1], "retransmission reuses the exact bytes")
	assert.Equal(t, copies[0], copies[2])

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame.EncodeAck(1)))
}

func TestMalformedFrameIsDroppedSilently(t *testing.T) {
	server, _ := newTestEndpoint(t)
	conn := dial(t, server, "clientId=trader-1&token=trader&deviceId=42")

	// 8-byte frame: malformed, dropped without a reply.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 8)))
	// Unknown prefix: same.
	bad := frame.EncodeAck(1)
	bad[0] = 0x7f
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, bad))

	// The connection survives and still serves requests.
	sendData(t, conn, 2, "echo", []byte("still alive"))
	ack := readFrame(t, conn)
	require.IsType(t, &frame.AckFrame{}, ack)

	reply := readFrame(t, conn).(*frame.DataFrame)
	assert.Contains(t, string(reply.Payload), "still alive")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame.EncodeAck(reply.MsgID)))
}

func TestReconnectReplaysPendingBeforeNewFrames(t *testing.T) {
	server, _ := newTestEndpoint(t)
	query := "clientId=trader-1&token=trader&deviceId=42&sessionToken=" + testSessionToken

	conn := dial(t, server, query)
	sendData(t, conn, 1, "echo", []byte("hi"))
	readFrame(t, conn) // ACK

	reply := readFrame(t, conn).(*frame.DataFrame)
	originalMsgID := reply.MsgID

	// Drop the connection without acking the reply.
	require.NoError(t, conn.Close())
	time.Sleep(50 * time.Millisecond)

	// Same identity within the TTL: the pending frame comes back first,
	// with its original msgId.
	conn2 := dial(t, server, query)
	replayed := readFrame(t, conn2).(*frame.DataFrame)
	assert.Equal(t, originalMsgID, replayed.MsgID)
	assert.Equal(t, reply.Payload, replayed.Payload)

	require.NoError(t, conn2.WriteMessage(websocket.BinaryMessage, frame.EncodeAck(replayed.MsgID)))
}

func TestFreshSessionTokenMeansFreshSession(t *testing.T) {
	server, _ := newTestEndpoint(t)

	// No sessionToken: the server mints a new one per connection, so the
	// second connection gets a new session with no pending state.
	conn := dial(t, server, "clientId=trader-1&token=trader&deviceId=42")
	sendData(t, conn, 1, "echo", []byte("hi"))
	readFrame(t, conn) // ACK
	readFrame(t, conn) // unacked reply
	require.NoError(t, conn.Close())

	// The mint salts with the wall clock; step past the millisecond so the
	// second connection cannot collide with the first token.
	time.Sleep(5 * time.Millisecond)

	conn2 := dial(t, server, "clientId=trader-1&token=trader&deviceId=42")
	sendData(t, conn2, 1, "echo", []byte("fresh"))
	ack := readFrame(t, conn2)
	require.IsType(t, &frame.AckFrame{}, ack, "no replay precedes the ACK on a fresh session")

	reply := readFrame(t, conn2).(*frame.DataFrame)
	assert.Equal(t, uint64(1), reply.MsgID, "msgId counter starts over for a fresh session")
	assert.Contains(t, string(reply.Payload), "fresh")
	require.NoError(t, conn2.WriteMessage(websocket.BinaryMessage, frame.EncodeAck(reply.MsgID)))
}
