package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/frostbank/internal/domain"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	currencyIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_currency_issued_total",
			Help: "Currency credited to accounts by source",
		},
		[]string{"source"},
	)
	currencyWithdrawnTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_currency_withdrawn_total",
			Help: "Currency removed from accounts by admin withdrawals",
		},
	)
	voiceTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_reward_ticks_total",
			Help: "Voice reward scheduler ticks by outcome",
		},
		[]string{"outcome"},
	)
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Ledger events handed to the broker by outcome",
		},
		[]string{"outcome"},
	)
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
	ledgerAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_accounts",
			Help: "Number of ledger accounts",
		},
	)
	ledgerSupply = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_supply",
			Help: "Sum of all account balances",
		},
	)
)

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	botCommandsTotal.WithLabelValues(orUnknown(command), orUnknown(status)).Inc()
	commandDurationSeconds.WithLabelValues(orUnknown(command)).Observe(duration.Seconds())
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	errorsTotal.WithLabelValues(orUnknown(code), orUnknown(severity)).Inc()
}

// RecordLedgerOperation counts one ledger operation outcome.
func RecordLedgerOperation(operation, outcome string) {
	ledgerOperationsTotal.WithLabelValues(orUnknown(operation), orUnknown(outcome)).Inc()
}

// RecordIssued adds amount to the issued counter for source.
func RecordIssued(source string, amount int64) {
	if amount <= 0 {
		return
	}
	currencyIssuedTotal.WithLabelValues(orUnknown(source)).Add(float64(amount))
}

// RecordWithdrawn adds amount to the withdrawn counter.
func RecordWithdrawn(amount int64) {
	if amount <= 0 {
		return
	}
	currencyWithdrawnTotal.Add(float64(amount))
}

// RecordVoiceTick counts one scheduler tick outcome.
func RecordVoiceTick(outcome string) {
	voiceTicksTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

// RecordEventPublished counts one event publish attempt.
func RecordEventPublished(outcome string) {
	eventsPublishedTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

// SetCircuitBreakerState exports a breaker's state.
func SetCircuitBreakerState(name string, state int) {
	circuitBreakerState.WithLabelValues(orUnknown(name)).Set(float64(state))
}

// SetLedgerStats updates the ledger gauges.
func SetLedgerStats(stats domain.LedgerStats) {
	ledgerAccounts.Set(float64(stats.Accounts))
	ledgerSupply.Set(float64(stats.Supply))
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// StatsSource reports ledger-wide totals.
type StatsSource interface {
	Stats(ctx context.Context) (domain.LedgerStats, error)
}

// LedgerCollector periodically polls ledger totals and emits gauge metrics.
type LedgerCollector struct {
	source   StatsSource
	interval time.Duration
	log      *slog.Logger
}

// NewLedgerCollector builds a collector polling source every interval.
func NewLedgerCollector(source StatsSource, interval time.Duration, log *slog.Logger) *LedgerCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &LedgerCollector{
		source:   source,
		interval: interval,
		log:      log.With(slog.String("component", "ledger_collector")),
	}
}

// Run polls until ctx is cancelled.
func (c *LedgerCollector) Run(ctx context.Context) {
	if c == nil || c.source == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.collect(ctx); err != nil {
			c.log.Warn("failed to collect ledger stats", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *LedgerCollector) collect(ctx context.Context) error {
	stats, err := c.source.Stats(ctx)
	if err != nil {
		return err
	}

	SetLedgerStats(stats)
	return nil
}
