package history

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efecan0/trading-gateway-go/internal/domain"
)

type sqlCapture struct {
	mu         chan struct{}
	statements []string
	respond    func(sql string) string
}

func newTestRepo(t *testing.T, respond func(sql string) string) (*ClickHouseRepository, *sqlCapture) {
	t.Helper()
	capture := &sqlCapture{mu: make(chan struct{}, 1), respond: respond}
	capture.mu <- struct{}{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		<-capture.mu
		capture.statements = append(capture.statements, string(body))
		capture.mu <- struct{}{}
		if capture.respond != nil {
			_, _ = w.Write([]byte(capture.respond(string(body))))
		}
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, _ := strconv.Atoi(u.Port())
	return NewClickHouseRepository(u.Hostname(), port, "trading", "default", ""), capture
}

func (c *sqlCapture) all() []string {
	<-c.mu
	defer func() { c.mu <- struct{}{} }()
	return append([]string(nil), c.statements...)
}

func TestConnectBootstrapsTables(t *testing.T) {
	repo, capture := newTestRepo(t, func(sql string) string {
		if sql == "SELECT 1" {
			return "1\n"
		}
		return ""
	})

	require.NoError(t, repo.Connect())
	assert.True(t, repo.IsConnected())

	statements := capture.all()
	require.GreaterOrEqual(t, len(statements), 5)
	assert.Equal(t, "SELECT 1", statements[0])
	assert.Contains(t, statements[2], "candles_1m")
	assert.Contains(t, statements[4], "orders_log")
}

func TestFetchParsesTSV(t *testing.T) {
	repo, capture := newTestRepo(t, func(sql string) string {
		return "1700000000\t100.5\t101\t99.5\t100.9\t5000\n" +
			"1700000060\t100.9\t102\t100\t101.5\t6000\n"
	})

	candles, err := repo.Fetch("BTC-USD", domain.HistoryQuery{FromTs: 1700000000, ToTs: 1700003600, Interval: domain.IntervalM1, Limit: 100})
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000), candles[0].OpenTime)
	assert.Equal(t, 100.5, candles[0].Open)
	assert.Equal(t, uint64(6000), candles[1].Volume)
	assert.Equal(t, domain.IntervalM1, candles[0].Interval)

	sql := capture.all()[0]
	assert.Contains(t, sql, "symbol = 'BTC-USD'")
	assert.Contains(t, sql, "LIMIT 100")
}

func TestFetchEscapesSymbol(t *testing.T) {
	repo, capture := newTestRepo(t, nil)
	_, err := repo.Fetch("BTC'-USD", domain.HistoryQuery{FromTs: 1, ToTs: 2, Interval: domain.IntervalM1, Limit: 10})
	require.NoError(t, err)
	assert.Contains(t, capture.all()[0], `BTC\'-USD`)
}

func TestLatestParsesPerSymbolRows(t *testing.T) {
	repo, _ := newTestRepo(t, func(sql string) string {
		return "BTC-USD\t1700000000\t100\t101\t99\t100.5\t5000\n" +
			"ETH-USD\t1700000000\t2500\t2510\t2490\t2505\t3000\n"
	})

	candles, err := repo.Latest([]string{"BTC-USD", "ETH-USD"}, 8)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "BTC-USD", candles[0].Symbol)
	assert.Equal(t, 2505.0, candles[1].Close)
}

func TestGetOrderHistoryParsesJSONEachRow(t *testing.T) {
	repo, _ := newTestRepo(t, func(sql string) string {
		return `{"idemp_key":"K1","ts":"2026-08-05 10:00:00","status":"ACK","order_id":"ORD_1","result":"{\"symbol\":\"BTC-USD\",\"side\":\"BUY\",\"price\":50000,\"quantity\":1}"}` + "\n"
	})

	rows, err := repo.GetOrderHistory("", "", 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "K1", rows[0].IdempKey)
	assert.Equal(t, "BTC-USD", rows[0].Symbol)
	assert.Equal(t, 50000.0, rows[0].Price)
}

func TestGetOrderDetailsMissing(t *testing.T) {
	repo, _ := newTestRepo(t, func(sql string) string { return "" })
	row, err := repo.GetOrderDetails("ORD_404")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestAppendOrderLogBuildsInsert(t *testing.T) {
	repo, capture := newTestRepo(t, nil)
	require.NoError(t, repo.AppendOrderLog("K1", "ACK", "ORD_1", `{"symbol":"BTC-USD"}`))

	sql := capture.all()[0]
	assert.True(t, strings.HasPrefix(sql, "INSERT INTO trading.orders_log"))
	assert.Contains(t, sql, "'K1'")
	assert.Contains(t, sql, "'ACK'")
}
