// Package domain holds the trading vocabulary shared by the handler surface,
// the risk validator and the history repository.
package domain

import "time"

type Side int

const (
	SideBuy Side = iota
	SideSell
)

func SideFromString(s string) Side {
	if s == "SELL" {
		return SideSell
	}
	return SideBuy
}

type OrderType int

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

func OrderTypeFromString(s string) OrderType {
	if s == "MARKET" {
		return OrderTypeMarket
	}
	return OrderTypeLimit
}

// OrderStatus values are part of the wire contract; replies carry the
// numeric value.
type OrderStatus int

const (
	StatusNew OrderStatus = iota
	StatusAck
	StatusPartiallyFilled
	StatusFilled
	StatusRejected
	StatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusAck:
		return "ACK"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusRejected:
		return "REJECTED"
	case StatusCanceled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

type Order struct {
	OrderID        string
	IdempotencyKey string
	Symbol         string
	Type           OrderType
	Side           Side
	Qty            float64
	Price          float64
	Status         OrderStatus
	CreatedAt      int64
}

func NewOrder(orderID, key, symbol string, typ OrderType, side Side, qty, price float64) Order {
	return Order{
		OrderID:        orderID,
		IdempotencyKey: key,
		Symbol:         symbol,
		Type:           typ,
		Side:           side,
		Qty:            qty,
		Price:          price,
		Status:         StatusNew,
		CreatedAt:      time.Now().UnixMilli(),
	}
}

// OrderResult is the computed outcome bound to an idempotency key.
type OrderResult struct {
	Status  OrderStatus
	OrderID string
	EchoKey string
	Reason  string
}

type Account struct {
	AccountID    string
	OwnerUserID  string
	BaseCurrency string
	Balance      float64
}

type Position struct {
	Symbol   string
	Qty      float64
	AvgPrice float64
}

type Interval string

const (
	IntervalS1  Interval = "S1"
	IntervalS5  Interval = "S5"
	IntervalS15 Interval = "S15"
	IntervalM1  Interval = "M1"
	IntervalM5  Interval = "M5"
	IntervalM15 Interval = "M15"
	IntervalH1  Interval = "H1"
	IntervalD1  Interval = "D1"
)

func IntervalFromString(s string) Interval {
	switch Interval(s) {
	case IntervalS1, IntervalS5, IntervalS15, IntervalM1, IntervalM5, IntervalM15, IntervalH1, IntervalD1:
		return Interval(s)
	}
	return IntervalM1
}

type Candle struct {
	Symbol   string   `json:"-"`
	OpenTime int64    `json:"openTime"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	Volume   uint64   `json:"volume"`
	Interval Interval `json:"interval"`
}

type HistoryQuery struct {
	FromTs   int64
	ToTs     int64
	Interval Interval
	Limit    int
}

type OrderLog struct {
	IdempKey string  `json:"idempKey"`
	Ts       string  `json:"ts"`
	Status   string  `json:"status"`
	OrderID  string  `json:"orderId"`
	Result   string  `json:"result"`
	Symbol   string  `json:"symbol,omitempty"`
	Side     string  `json:"side,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
}

type Metrics struct {
	Ts        int64
	LatencyMs float64
	Thruput   float64
	ErrorRate float64
	ConnCount int
}

type AlertRule struct {
	RuleID    string  `json:"ruleId"`
	MetricKey string  `json:"metricKey"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
	Enabled   bool    `json:"enabled"`
}

type AlertEvent struct {
	EventID string  `json:"eventId"`
	RuleID  string  `json:"ruleId"`
	Ts      int64   `json:"ts"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}
