// Package metrics – Prometheus metrics for observability.
//
// Exposes:
//   - okxbot_entries_total{kind,side,result}     – entry attempts (result: active|failed|conflict)
//   - okxbot_protection_orders_total{leg,result} – TP/SL algo orders (result: attached|failed)
//   - okxbot_retries_total{op}                   – failed attempts seen by the retry policy
//   - okxbot_position_closes_total               – venue-pushed closes reconciled into the store
//   - okxbot_listener_reconnects_total           – websocket reconnects
//   - okxbot_listener_state{state}               – current listener state (1 for the active one)
//
// Registered in init() on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	entries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okxbot_entries_total",
			Help: "Entry attempts by order kind, side and outcome",
		},
		[]string{"kind", "side", "result"},
	)

	protection = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okxbot_protection_orders_total",
			Help: "Take-profit / stop-loss algo orders by outcome",
		},
		[]string{"leg", "result"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okxbot_retries_total",
			Help: "Failed attempts observed by the retry policy",
		},
		[]string{"op"},
	)

	closes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "okxbot_position_closes_total",
			Help: "Venue-pushed position closes reconciled into local state",
		},
	)

	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "okxbot_listener_reconnects_total",
			Help: "Private websocket reconnects",
		},
	)

	listenerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "okxbot_listener_state",
			Help: "Listener state indicator (one labeled series per state, 1 = current)",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(entries, protection, retries, closes, reconnects, listenerState)
}

func Entry(kind, side, result string) { entries.WithLabelValues(kind, side, result).Inc() }

func Protection(leg, result string) { protection.WithLabelValues(leg, result).Inc() }

func Retry(op string) { retries.WithLabelValues(op).Inc() }

func PositionClosed() { closes.Inc() }

func Reconnect() { reconnects.Inc() }

// ListenerState 把 to 置 1，from 置 0。
func ListenerState(from, to string) {
	if from != "" {
		listenerState.WithLabelValues(from).Set(0)
	}
	listenerState.WithLabelValues(to).Set(1)
}
