// Package history bridges the gateway to the columnar time-series store used
// for candle queries and the order audit log.
package history

import (
	"github.com/efecan0/trading-gateway-go/internal/domain"
)

// Repository is the boundary the handler surface consumes. The ClickHouse
// implementation is the reference backend; tests substitute fakes.
type Repository interface {
	// Fetch returns candles for one symbol. Timestamps are seconds.
	Fetch(symbol string, query domain.HistoryQuery) ([]domain.Candle, error)
	// Latest returns the most recent candle per symbol.
	Latest(symbols []string, limit int) ([]domain.Candle, error)
	// AppendOrderLog writes one audit row.
	AppendOrderLog(idempKey, status, orderID, resultJSON string) error
	// GetOrderHistory returns audit rows, newest first.
	GetOrderHistory(fromTime, toTime string, limit int) ([]domain.OrderLog, error)
	// GetOrderDetails returns the newest audit row for the order, nil when unknown.
	GetOrderDetails(orderID string) (*domain.OrderLog, error)
	// Reconnect re-establishes the backend connection after a failure.
	Reconnect() error
}
