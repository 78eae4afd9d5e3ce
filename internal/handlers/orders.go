package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/domain"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/session"
)

const orderRateLimitField = "rateLimit_orders.place"
const orderRateLimitWindowMs = 1000

func (d *Deps) handleOrdersPlace(payload []byte, ctx *dispatch.Ctx) {
	ses := ctx.Session
	now := time.Now().UnixMilli()

	// Rate limit first: the window is per session and ignores the
	// idempotency key entirely.
	if last, ok := ses.GetField(orderRateLimitField); ok && last.Kind == session.KindInt {
		if now-last.Int < orderRateLimitWindowMs {
			logger.Conn(ses.ID()).DebugF("Rate limit exceeded for orders.place")
			d.replyError(ctx, "RATE_LIMIT_EXCEEDED", "Too many requests")
			return
		}
	}
	ses.SetField(orderRateLimitField, session.IntField(now), false)

	request := parsePayload(payload)

	// Missing fields take the documented defaults; this permissive behavior
	// is part of the contract.
	idempotencyKey := stringValue(request, "idempotencyKey", "DEFAULT_KEY")
	symbol := stringValue(request, "symbol", "BTC-USD")
	side := stringValue(request, "side", "BUY")
	orderType := stringValue(request, "type", "LIMIT")
	qty := floatValue(request, "qty", 1.0)
	price := floatValue(request, "price", 50000.0)

	result, replay := d.Cache.Bind(idempotencyKey, func() domain.OrderResult {
		orderID := "ORD_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
		order := domain.NewOrder(orderID, idempotencyKey, symbol,
			domain.OrderTypeFromString(orderType), domain.SideFromString(side), qty, price)

		account := d.accountForSession(ses)
		var positions []domain.Position // no position service is connected

		if !d.Risk.Validate(account, positions, order) {
			return domain.OrderResult{
				Status:  domain.StatusRejected,
				OrderID: orderID,
				EchoKey: idempotencyKey,
				Reason:  d.Risk.Error(),
			}
		}

		status := domain.StatusAck
		if order.Type == domain.OrderTypeMarket {
			status = domain.StatusFilled
		}
		return domain.OrderResult{Status: status, OrderID: orderID, EchoKey: idempotencyKey}
	})

	if replay {
		logger.Conn(ses.ID()).DebugF("Replaying cached outcome for key %s", idempotencyKey)
		ctx.Reply(d.orderResponse(ses.ID(), result, "AtLeastOnce - cached result",
			symbol, side, orderType, qty, price, idempotencyKey))
		return
	}

	qos := "AtLeastOnce - reliable delivery"
	if result.Status == domain.StatusRejected {
		qos = "AtLeastOnce - risk rejected"
	} else {
		details := map[string]interface{}{
			"orderId":   result.OrderID,
			"symbol":    symbol,
			"side":      side,
			"type":      orderType,
			"quantity":  qty,
			"price":     price,
			"status":    int(result.Status),
			"sessionId": ses.ID(),
			"timestamp": now,
		}
		detailsJSON, err := json.Marshal(details)
		if err != nil {
			detailsJSON = []byte(`{"error":"json_dump_failed"}`)
		}
		d.Writer.Append(idempotencyKey, result.Status.String(), result.OrderID, string(detailsJSON))
	}

	ses.SetField(session.FieldLastOrderID, session.StringField(result.OrderID), false)
	ses.SetField(session.FieldLastOrderStatus, session.StringField(strconv.Itoa(int(result.Status))), false)

	d.Metrics.OrderPlaced()
	d.checkAndBroadcastAlerts()

	ctx.Reply(d.orderResponse(ses.ID(), result, qos, symbol, side, orderType, qty, price, idempotencyKey))
}

func (d *Deps) orderResponse(sessionID string, result domain.OrderResult, qos,
	symbol, side, orderType string, qty, price float64, idempotencyKey string) map[string]interface{} {
	return map[string]interface{}{
		"status":    int(result.Status),
		"orderId":   result.OrderID,
		"echoKey":   result.EchoKey,
		"reason":    result.Reason,
		"qos":       qos,
		"sessionId": sessionID,

		"symbol":         symbol,
		"side":           side,
		"type":           orderType,
		"price":          price,
		"quantity":       qty,
		"idempotencyKey": idempotencyKey,
	}
}

func (d *Deps) accountForSession(ses *session.Session) domain.Account {
	userID, ok := ses.GetStringField(session.FieldUserID)
	if !ok || userID == "" {
		userID = "demo-user"
	}
	return domain.Account{
		AccountID:    "ACC_" + userID,
		OwnerUserID:  userID,
		BaseCurrency: "USD",
		Balance:      100000.0,
	}
}

func (d *Deps) handleOrdersCancel(payload []byte, ctx *dispatch.Ctx) {
	request := parsePayload(payload)
	orderID := stringValue(request, "orderId", "")

	if orderID == "" {
		d.replyError(ctx, "INVALID_PARAMS", "Missing orderId")
		return
	}

	details := map[string]interface{}{
		"symbol":   "",
		"side":     "",
		"price":    0.0,
		"quantity": 0.0,
		"type":     "",
	}
	if d.Repo != nil {
		if original, err := d.Repo.GetOrderDetails(orderID); err == nil && original != nil {
			details["symbol"] = original.Symbol
			details["side"] = original.Side
			details["price"] = original.Price
			details["quantity"] = original.Quantity
		} else if err != nil {
			logger.Conn(ctx.Session.ID()).WarnF("Could not load original order %s, details: %v", orderID, err)
		}
	}
	nowMs := time.Now().UnixMilli()
	details["orderId"] = orderID
	details["originalOrderId"] = orderID
	details["status"] = "CANCELLED"
	details["sessionId"] = ctx.Session.ID()
	details["timestamp"] = nowMs
	details["cancelledAt"] = nowMs

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte(`{"error":"json_dump_failed"}`)
	}
	d.Writer.Append("CANCEL_"+orderID, "CANCELLED", orderID, string(detailsJSON))

	d.Metrics.OrderCancelled()
	d.checkAndBroadcastAlerts()

	ctx.Reply(map[string]interface{}{
		"status":  int(domain.StatusCanceled),
		"orderId": orderID,
		"message": "Order canceled successfully",
		"qos":     "AtLeastOnce - reliable delivery",
	})
}

func (d *Deps) handleOrdersStatus(payload []byte, ctx *dispatch.Ctx) {
	lastOrderID, ok := ctx.Session.GetStringField(session.FieldLastOrderID)
	if !ok {
		lastOrderID = "none"
	}
	lastOrderStatus, ok := ctx.Session.GetStringField(session.FieldLastOrderStatus)
	if !ok {
		lastOrderStatus = "none"
	}

	ctx.Reply(map[string]interface{}{
		"lastOrderId":     lastOrderID,
		"lastOrderStatus": lastOrderStatus,
		"message":         "Order status retrieved from session state",
	})
}

func (d *Deps) handleOrdersHistory(payload []byte, ctx *dispatch.Ctx) {
	request := parsePayload(payload)
	fromTime := stringValue(request, "fromTime", "")
	toTime := stringValue(request, "toTime", "")
	limit := intValue(request, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}

	if d.Repo == nil {
		d.replyError(ctx, "SERVICE_UNAVAILABLE", "History repository not available")
		return
	}

	orderHistory, err := d.Repo.GetOrderHistory(fromTime, toTime, limit)
	if err != nil {
		d.replyError(ctx, "INTERNAL_ERROR", fmt.Sprintf("Order history retrieval failed: %v", err))
		return
	}

	orders := make([]domain.OrderLog, 0, len(orderHistory))
	orders = append(orders, orderHistory...)

	ctx.Reply(map[string]interface{}{
		"success": true,
		"orders":  orders,
		"count":   len(orders),
		"message": "Order history retrieved successfully",
	})
}
