package handlers

import (
	"encoding/json"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/alerts"
	"github.com/efecan0/trading-gateway-go/internal/dispatch"
	"github.com/efecan0/trading-gateway-go/internal/domain"
	"github.com/efecan0/trading-gateway-go/internal/logger"
)

func (d *Deps) handleAlertsSubscribe(payload []byte, ctx *dispatch.Ctx) {
	d.Rooms.Join(AlertsRoom, ctx.Session.ID())

	ctx.Reply(map[string]interface{}{
		"room":    AlertsRoom,
		"message": "Successfully subscribed to alerts using room management",
	})
}

func (d *Deps) handleAlertsList(payload []byte, ctx *dispatch.Ctx) {
	snap := d.Metrics.Snapshot()
	evaluated := alerts.BuiltIn(snap)

	sample := domain.Metrics{
		Ts:        snap.Ts,
		LatencyMs: snap.LatencyMs,
		Thruput:   snap.Throughput,
		ErrorRate: snap.ErrorRate,
		ConnCount: snap.ConnCount,
	}
	alertEvents := d.Alerts.Evaluate(sample)
	if alertEvents == nil {
		alertEvents = []domain.AlertEvent{}
	}

	ctx.Reply(map[string]interface{}{
		"alerts":      evaluated,
		"alertEvents": alertEvents,
		"timestamp":   snap.Ts,
		"message":     "Real-time system alerts with current metrics",
	})

	if alerts.AnyFiring(evaluated) || len(alertEvents) > 0 {
		d.broadcastAlertPayload(map[string]interface{}{
			"type":      "alert_status_change",
			"alerts":    evaluated,
			"timestamp": snap.Ts,
			"message":   "System alert status changed",
		})
	}
}

func (d *Deps) handleAlertsRegister(payload []byte, ctx *dispatch.Ctx) {
	request := parsePayload(payload)

	ruleID := stringValue(request, "ruleId", "")
	metricKey := stringValue(request, "metricKey", "")
	operator := stringValue(request, "operator", "")
	threshold := floatValue(request, "threshold", 0.0)
	enabled := boolValue(request, "enabled", true)

	if ruleID == "" || metricKey == "" || operator == "" {
		d.replyError(ctx, "INVALID_PARAMS", "Missing required parameters: ruleId, metricKey, operator")
		return
	}

	d.Alerts.Register(domain.AlertRule{
		RuleID:    ruleID,
		MetricKey: metricKey,
		Operator:  operator,
		Threshold: threshold,
		Enabled:   enabled,
	})

	ctx.Reply(map[string]interface{}{
		"ruleId":    ruleID,
		"metricKey": metricKey,
		"operator":  operator,
		"threshold": threshold,
		"enabled":   enabled,
		"message":   "Alert rule registered successfully",
	})
}

func (d *Deps) handleAlertsDisable(payload []byte, ctx *dispatch.Ctx) {
	request := parsePayload(payload)

	ruleID := stringValue(request, "ruleId", "")
	if ruleID == "" {
		d.replyError(ctx, "INVALID_PARAMS", "Missing required parameter: ruleId")
		return
	}

	d.Alerts.Disable(ruleID)

	ctx.Reply(map[string]interface{}{
		"ruleId":  ruleID,
		"message": "Alert rule disabled successfully",
	})
}

// checkAndBroadcastAlerts re-evaluates thresholds after a metrics change and
// pushes to the alerts room when anything fires.
func (d *Deps) checkAndBroadcastAlerts() {
	snap := d.Metrics.Snapshot()

	evaluated := alerts.BuiltIn(snap)
	firing := make(map[string]alerts.Alert)
	for name, alert := range evaluated {
		if alert.Status == alerts.StatusAlert || alert.Status == alerts.StatusWarning {
			firing[name] = alert
		}
	}

	sample := domain.Metrics{
		Ts:        snap.Ts,
		LatencyMs: snap.LatencyMs,
		Thruput:   snap.Throughput,
		ErrorRate: snap.ErrorRate,
		ConnCount: snap.ConnCount,
	}
	events := d.Alerts.Evaluate(sample)

	if len(firing) == 0 && len(events) == 0 {
		return
	}

	payload := map[string]interface{}{
		"type":      "metrics_alert",
		"alerts":    firing,
		"events":    events,
		"timestamp": snap.Ts,
		"message":   "System metrics triggered alerts",
	}
	d.broadcastAlertPayload(payload)
}

func (d *Deps) broadcastAlertPayload(payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.ErrorF("Failed to marshal alert broadcast, details: %v", err)
		return
	}
	n := d.Rooms.Broadcast(AlertsRoom, "alerts.push", data)
	if n > 0 {
		logger.DebugF("Alert broadcast reached %d sessions at %d", n, time.Now().UnixMilli())
	}
}
