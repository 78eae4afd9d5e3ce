// Package risk implements the pre-trade validation the gateway consults
// before accepting an order. Validation is a pure function over the
// account/positions/order triple.
package risk

import (
	"fmt"
	"math"
	"sync"

	"github.com/efecan0/trading-gateway-go/internal/domain"
)

const (
	maxPositionQty   = 1000.0
	maxOrderNotional = 100000.0

	// Market orders fill at an unknown price; the notional check carries a
	// 10% buffer over the reference price.
	marketNotionalBuffer = 1.1
)

type Validator struct {
	mu        sync.Mutex
	lastError string
}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns false when the order violates a limit; Error then holds
// the reason.
func (v *Validator) Validate(account domain.Account, positions []domain.Position, order domain.Order) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastError = ""

	if !v.validateOrderNotional(order) {
		return false
	}
	if order.Side == domain.SideBuy && !v.validateBalance(account, order) {
		return false
	}
	if !v.validatePositionLimits(positions, order) {
		return false
	}
	return true
}

// Error returns the most recent validation failure.
func (v *Validator) Error() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastError
}

func (v *Validator) validateOrderNotional(order domain.Order) bool {
	if notional := orderNotional(order); notional > maxOrderNotional {
		v.lastError = fmt.Sprintf("Order notional limit exceeded. Max notional: $%.2f", maxOrderNotional)
		return false
	}
	return true
}

func (v *Validator) validateBalance(account domain.Account, order domain.Order) bool {
	required := orderNotional(order)
	if account.Balance < required {
		v.lastError = fmt.Sprintf("Insufficient balance. Required: $%.2f, Available: $%.2f", required, account.Balance)
		return false
	}
	return true
}

func (v *Validator) validatePositionLimits(positions []domain.Position, order domain.Order) bool {
	current := currentPosition(order.Symbol, positions)

	next := current
	if order.Side == domain.SideBuy {
		next += order.Qty
	} else {
		next -= order.Qty
	}

	if math.Abs(next) > maxPositionQty {
		v.lastError = fmt.Sprintf("Position limit exceeded. Max position: %.0f", maxPositionQty)
		return false
	}
	return true
}

func orderNotional(order domain.Order) float64 {
	if order.Type == domain.OrderTypeMarket {
		return order.Qty * order.Price * marketNotionalBuffer
	}
	return order.Qty * order.Price
}

func currentPosition(symbol string, positions []domain.Position) float64 {
	for _, p := range positions {
		if p.Symbol == symbol {
			return p.Qty
		}
	}
	return 0
}
