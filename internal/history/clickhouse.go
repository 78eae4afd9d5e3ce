package history

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/config"
	"github.com/efecan0/trading-gateway-go/internal/domain"
	"github.com/efecan0/trading-gateway-go/internal/logger"
)

// ClickHouseRepository speaks the ClickHouse HTTP interface: SQL statements
// POSTed to the root endpoint, results read back as TSV or JSONEachRow.
type ClickHouseRepository struct {
	host     string
	port     int
	database string
	user     string
	password string

	client    *http.Client
	connected atomic.Bool
}

func NewClickHouseRepository(host string, port int, database, user, password string) *ClickHouseRepository {
	return &ClickHouseRepository{
		host:     host,
		port:     port,
		database: database,
		user:     user,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClickHouseRepositoryFromConfig builds the repository from the resolved
// configuration (file values plus CLICKHOUSE_* environment overrides).
func NewClickHouseRepositoryFromConfig(cfg config.Config) *ClickHouseRepository {
	ch := cfg.ClickHouse
	logger.InfoF("ClickHouse repository targeting %s:%d database %s", ch.Host, ch.HTTPPort, ch.Database)
	return NewClickHouseRepository(ch.Host, ch.HTTPPort, ch.Database, ch.User, ch.Password)
}

func (r *ClickHouseRepository) url() string {
	return fmt.Sprintf("http://%s:%d/", r.host, r.port)
}

func (r *ClickHouseRepository) exec(sql string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, r.url(), strings.NewReader(sql))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if r.user != "" {
		req.Header.Set("X-ClickHouse-User", r.user)
		req.Header.Set("X-ClickHouse-Key", r.password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.connected.Store(false)
		return "", fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read clickhouse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("clickhouse returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// Connect pings the server and bootstraps the tables.
func (r *ClickHouseRepository) Connect() error {
	if _, err := r.exec("SELECT 1"); err != nil {
		return err
	}
	if err := r.createTables(); err != nil {
		return err
	}
	r.connected.Store(true)
	logger.Info("ClickHouse connection established")
	return nil
}

func (r *ClickHouseRepository) IsConnected() bool {
	return r.connected.Load()
}

func (r *ClickHouseRepository) Reconnect() error {
	logger.Warn("Attempting ClickHouse reconnect")
	return r.Connect()
}

func (r *ClickHouseRepository) createTables() error {
	statements := []string{
		"CREATE DATABASE IF NOT EXISTS " + r.database,
		`CREATE TABLE IF NOT EXISTS ` + r.database + `.candles_1m (
			symbol String,
			open_time DateTime,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume UInt64
		) ENGINE = MergeTree() ORDER BY (symbol, open_time)`,
		`CREATE TABLE IF NOT EXISTS ` + r.database + `.ticks (
			symbol String,
			ts DateTime,
			price Float64,
			volume UInt64
		) ENGINE = MergeTree() ORDER BY (symbol, ts)`,
		`CREATE TABLE IF NOT EXISTS ` + r.database + `.orders_log (
			idemp_key String,
			ts DateTime,
			status String,
			order_id String,
			result String
		) ENGINE = MergeTree() ORDER BY (idemp_key, ts)`,
	}
	for _, stmt := range statements {
		if _, err := r.exec(stmt); err != nil {
			return fmt.Errorf("table bootstrap failed: %w", err)
		}
	}
	return nil
}

func (r *ClickHouseRepository) Fetch(symbol string, query domain.HistoryQuery) ([]domain.Candle, error) {
	limit := query.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	sql := fmt.Sprintf(
		"SELECT toUnixTimestamp(open_time), open, high, low, close, volume FROM %s.candles_1m "+
			"WHERE symbol = '%s' AND open_time >= toDateTime(%d) AND open_time <= toDateTime(%d) "+
			"ORDER BY open_time ASC LIMIT %d FORMAT TabSeparated",
		r.database, escape(symbol), query.FromTs, query.ToTs, limit,
	)

	body, err := r.exec(sql)
	if err != nil {
		return nil, err
	}

	var candles []domain.Candle
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 6 {
			logger.WarnF("Skipping malformed candle row: %q", line)
			continue
		}
		candle, err := parseCandleRow(symbol, fields, query.Interval)
		if err != nil {
			logger.WarnF("Skipping unparsable candle row: %v", err)
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (r *ClickHouseRepository) Latest(symbols []string, limit int) ([]domain.Candle, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(symbols))
	for i, s := range symbols {
		quoted[i] = "'" + escape(s) + "'"
	}

	sql := fmt.Sprintf(
		"SELECT symbol, toUnixTimestamp(open_time), open, high, low, close, volume FROM %s.candles_1m "+
			"WHERE symbol IN (%s) ORDER BY open_time DESC LIMIT 1 BY symbol FORMAT TabSeparated",
		r.database, strings.Join(quoted, ", "),
	)

	body, err := r.exec(sql)
	if err != nil {
		return nil, err
	}

	var candles []domain.Candle
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			logger.WarnF("Skipping malformed latest row: %q", line)
			continue
		}
		candle, err := parseCandleRow(fields[0], fields[1:], domain.IntervalM1)
		if err != nil {
			logger.WarnF("Skipping unparsable latest row: %v", err)
			continue
		}
		candles = append(candles, candle)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[:limit]
	}
	return candles, nil
}

func (r *ClickHouseRepository) AppendOrderLog(idempKey, status, orderID, resultJSON string) error {
	sql := fmt.Sprintf(
		"INSERT INTO %s.orders_log VALUES ('%s', now(), '%s', '%s', '%s')",
		r.database, escape(idempKey), escape(status), escape(orderID), escape(resultJSON),
	)
	_, err := r.exec(sql)
	return err
}

func (r *ClickHouseRepository) GetOrderHistory(fromTime, toTime string, limit int) ([]domain.OrderLog, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var where []string
	if fromTime != "" {
		where = append(where, fmt.Sprintf("ts >= parseDateTimeBestEffort('%s')", escape(fromTime)))
	}
	if toTime != "" {
		where = append(where, fmt.Sprintf("ts <= parseDateTimeBestEffort('%s')", escape(toTime)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	sql := fmt.Sprintf(
		"SELECT idemp_key, toString(ts), status, order_id, result FROM %s.orders_log%s ORDER BY ts DESC LIMIT %d FORMAT JSONEachRow",
		r.database, clause, limit,
	)

	body, err := r.exec(sql)
	if err != nil {
		return nil, err
	}
	return parseOrderLogRows(body), nil
}

func (r *ClickHouseRepository) GetOrderDetails(orderID string) (*domain.OrderLog, error) {
	sql := fmt.Sprintf(
		"SELECT idemp_key, toString(ts), status, order_id, result FROM %s.orders_log "+
			"WHERE order_id = '%s' ORDER BY ts DESC LIMIT 1 FORMAT JSONEachRow",
		r.database, escape(orderID),
	)

	body, err := r.exec(sql)
	if err != nil {
		return nil, err
	}
	rows := parseOrderLogRows(body)
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func parseCandleRow(symbol string, fields []string, interval domain.Interval) (domain.Candle, error) {
	openTime, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("open_time: %w", err)
	}
	var prices [4]float64
	for i := 0; i < 4; i++ {
		prices[i], err = strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("price field %d: %w", i, err)
		}
	}
	volume, err := strconv.ParseUint(fields[5], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("volume: %w", err)
	}
	return domain.Candle{
		Symbol:   symbol,
		OpenTime: openTime,
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		Volume:   volume,
		Interval: interval,
	}, nil
}

func parseOrderLogRows(body string) []domain.OrderLog {
	var rows []domain.OrderLog
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		var raw struct {
			IdempKey string `json:"idemp_key"`
			Ts       string `json:"ts"`
			Status   string `json:"status"`
			OrderID  string `json:"order_id"`
			Result   string `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			logger.WarnF("Skipping unparsable order log row: %v", err)
			continue
		}
		row := domain.OrderLog{
			IdempKey: raw.IdempKey,
			Ts:       raw.Ts,
			Status:   raw.Status,
			OrderID:  raw.OrderID,
			Result:   raw.Result,
		}
		// The result column carries the original order details as JSON;
		// surface the common fields for the history view.
		var details struct {
			Symbol   string  `json:"symbol"`
			Side     string  `json:"side"`
			Price    float64 `json:"price"`
			Quantity float64 `json:"quantity"`
		}
		if err := json.Unmarshal([]byte(raw.Result), &details); err == nil {
			row.Symbol = details.Symbol
			row.Side = details.Side
			row.Price = details.Price
			row.Quantity = details.Quantity
		}
		rows = append(rows, row)
	}
	return rows
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
