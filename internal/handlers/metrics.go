package handlers

import (
	"math"

	"github.com/efecan0/trading-gateway-go/internal/dispatch"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (d *Deps) handleMetricsGet(payload []byte, ctx *dispatch.Ctx) {
	snap := d.Metrics.Snapshot()

	systemPerformance := map[string]interface{}{
		"latency": map[string]interface{}{
			"avg":  round2(snap.LatencyMs),
			"unit": "ms",
			"p95":  round2(snap.P95Latency),
		},
		"throughput": map[string]interface{}{
			"value":  round2(snap.Throughput),
			"unit":   "tx/s",
			"period": "1m avg.",
		},
		"errorRate": map[string]interface{}{
			"value":  round2(snap.ErrorRate * 100),
			"unit":   "%",
			"period": "Last 5 min",
		},
		"connectionCount": map[string]interface{}{
			"value":  snap.ConnCount,
			"status": "active",
		},
		"totalOrders": map[string]interface{}{
			"value":  snap.TotalOrders,
			"period": "lifetime",
		},
		"cancelled": map[string]interface{}{
			"value":  snap.TotalCancels,
			"period": "total",
		},
		"errors": map[string]interface{}{
			"value":  snap.TotalErrors,
			"period": "total",
		},
		"activeSessions": map[string]interface{}{
			"value":  snap.ConnCount,
			"status": "current",
		},
	}

	// Flat fields are kept alongside the nested object for older clients.
	ctx.Reply(map[string]interface{}{
		"ts":                snap.Ts,
		"uptimeMs":          snap.UptimeMs,
		"systemPerformance": systemPerformance,
		"latencyMs":         snap.LatencyMs,
		"throughput":        snap.Throughput,
		"errorRate":         snap.ErrorRate,
		"totalOrders":       snap.TotalOrders,
		"totalCancels":      snap.TotalCancels,
		"totalErrors":       snap.TotalErrors,
		"connCount":         snap.ConnCount,
		"activeSessions":    snap.ConnCount,
	})
}
