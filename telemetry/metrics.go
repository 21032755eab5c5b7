// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesParsed    prometheus.Counter
	MessagesSent      prometheus.Counter
	SendsDropped      prometheus.Counter
	PongsSent         prometheus.Counter
	AuthFailures      prometheus.Counter
	SessionsOpened    prometheus.Counter
	SessionsClosed    prometheus.Counter
	ReconcileCycles   prometheus.Counter
	ReconcileFailures prometheus.Counter

	// AutomationActions counts fired automation actions by rule name.
	AutomationActions *prometheus.CounterVec

	// Gauges
	SessionsOpen prometheus.Gauge

	// Histograms (seconds)
	ReconcileDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesParsed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_parsed_total", Help: "Inbound PRIVMSG lines parsed"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_sent_total", Help: "Outbound chat messages transmitted"})
		SendsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sends_dropped_total", Help: "Sends dropped because the session was not joined or writable"})
		PongsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_pongs_sent_total", Help: "Keepalive PONG replies sent"})
		AuthFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_auth_failures_total", Help: "Fatal authentication NOTICEs received"})
		SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sessions_opened_total", Help: "Chat sessions opened"})
		SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sessions_closed_total", Help: "Chat sessions closed"})
		ReconcileCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "reconcile_cycles_total", Help: "Live-status reconcile cycles started"})
		ReconcileFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "reconcile_failures_total", Help: "Reconcile cycles aborted by a failed status query"})
		AutomationActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "automation_actions_total", Help: "Automation actions fired, by rule"}, []string{"rule"})
		SessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_sessions_open", Help: "Currently open chat sessions"})
		ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "reconcile_duration_seconds", Help: "Reconcile cycle duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
