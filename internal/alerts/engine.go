// Package alerts evaluates the built-in metric thresholds and the
// client-registered rules, producing the alerts.list payload and the
// alerts:system broadcasts.
package alerts

import (
	"fmt"
	"sync"

	"github.com/efecan0/trading-gateway-go/internal/domain"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/metrics"
)

const (
	StatusOK      = "ok"
	StatusAlert   = "alert"
	StatusWarning = "warning"
)

// Built-in thresholds.
const (
	latencyThreshold        = 100.0
	errorRateThreshold      = 0.01
	connCountThreshold      = 1000
	lowThroughputThreshold  = 10.0
	highThroughputThreshold = 2.0
)

// Alert is one evaluated built-in threshold as it appears in alerts.list.
type Alert struct {
	Threshold float64 `json:"threshold"`
	Current   float64 `json:"current"`
	Status    string  `json:"status"`
	Message   string  `json:"message"`
}

type Engine struct {
	mu    sync.Mutex
	rules map[string]domain.AlertRule
}

func NewEngine() *Engine {
	return &Engine{rules: make(map[string]domain.AlertRule)}
}

// Register inserts or replaces the rule.
func (e *Engine) Register(rule domain.AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[rule.RuleID] = rule
	logger.InfoF("Registered alert rule %s for metric %s with threshold %v", rule.RuleID, rule.MetricKey, rule.Threshold)
}

// Disable marks the rule disabled but retains the record.
func (e *Engine) Disable(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[ruleID]
	if !ok {
		return false
	}
	rule.Enabled = false
	e.rules[ruleID] = rule
	logger.InfoF("Disabled alert rule %s", ruleID)
	return true
}

func (e *Engine) Rules() []domain.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.AlertRule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, rule)
	}
	return out
}

// Evaluate runs every enabled rule against the metric sample.
func (e *Engine) Evaluate(m domain.Metrics) []domain.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []domain.AlertEvent
	for ruleID, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		var current float64
		var valueName string
		switch rule.MetricKey {
		case "latencyMs":
			current, valueName = m.LatencyMs, "latency"
		case "throughput":
			current, valueName = m.Thruput, "throughput"
		case "errorRate":
			current, valueName = m.ErrorRate, "error rate"
		case "connCount":
			current, valueName = float64(m.ConnCount), "connection count"
		default:
			continue
		}

		var triggered bool
		switch rule.Operator {
		case ">":
			triggered = current > rule.Threshold
		case ">=":
			triggered = current >= rule.Threshold
		case "<":
			triggered = current < rule.Threshold
		case "<=":
			triggered = current <= rule.Threshold
		case "==":
			triggered = current == rule.Threshold
		}

		if triggered {
			events = append(events, domain.AlertEvent{
				EventID: fmt.Sprintf("%s_%d", ruleID, m.Ts),
				RuleID:  ruleID,
				Ts:      m.Ts,
				Value:   current,
				Message: fmt.Sprintf("%s %s %v (current: %v)", valueName, rule.Operator, rule.Threshold, current),
			})
		}
	}
	return events
}

// BuiltIn evaluates the fixed threshold set against a snapshot.
func BuiltIn(snap metrics.Snapshot) map[string]Alert {
	uptimeSeconds := float64(snap.UptimeMs) / 1000.0
	alerts := make(map[string]Alert)

	alerts["high_latency"] = threshold(snap.LatencyMs, latencyThreshold, snap.LatencyMs > latencyThreshold,
		fmt.Sprintf("High latency detected: %dms", int(snap.LatencyMs)),
		fmt.Sprintf("Latency normal: %dms", int(snap.LatencyMs)))

	alerts["error_rate"] = threshold(snap.ErrorRate, errorRateThreshold, snap.ErrorRate > errorRateThreshold,
		fmt.Sprintf("High error rate: %.2f%%", snap.ErrorRate*100),
		fmt.Sprintf("Error rate normal: %.2f%%", snap.ErrorRate*100))

	alerts["connection_count"] = threshold(float64(snap.ConnCount), connCountThreshold, snap.ConnCount > connCountThreshold,
		fmt.Sprintf("High connection count: %d", snap.ConnCount),
		fmt.Sprintf("Connection count normal: %d", snap.ConnCount))

	lowThroughput := snap.Throughput < lowThroughputThreshold && uptimeSeconds > 60
	low := Alert{
		Threshold: lowThroughputThreshold,
		Current:   snap.Throughput,
		Status:    StatusOK,
		Message:   fmt.Sprintf("Throughput normal: %.2f orders/sec", snap.Throughput),
	}
	if lowThroughput {
		low.Status = StatusWarning
		low.Message = fmt.Sprintf("Low throughput: %.2f orders/sec", snap.Throughput)
	}
	alerts["low_throughput"] = low

	alerts["high_throughput"] = threshold(snap.Throughput, highThroughputThreshold, snap.Throughput > highThroughputThreshold,
		fmt.Sprintf("High throughput detected: %.2f orders/sec", snap.Throughput),
		fmt.Sprintf("Throughput normal: %.2f orders/sec", snap.Throughput))

	return alerts
}

func threshold(current, limit float64, triggered bool, alertMsg, okMsg string) Alert {
	a := Alert{Threshold: limit, Current: current, Status: StatusOK, Message: okMsg}
	if triggered {
		a.Status = StatusAlert
		a.Message = alertMsg
	}
	return a
}

// AnyFiring reports whether any evaluated alert left the ok state.
func AnyFiring(alerts map[string]Alert) bool {
	for _, a := range alerts {
		if a.Status == StatusAlert || a.Status == StatusWarning {
			return true
		}
	}
	return false
}
