package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type savingsMetrics struct {
	deposits    *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
	skips       *prometheus.CounterVec
}

type dcaMetrics struct {
	queued   prometheus.Counter
	executed prometheus.Counter
	skipped  *prometheus.CounterVec
}

type dailyMetrics struct {
	executions prometheus.Counter
	penalties  *prometheus.CounterVec
}

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	savingsMetricsOnce sync.Once
	savingsRegistry    *savingsMetrics

	dcaMetricsOnce sync.Once
	dcaRegistry    *dcaMetrics

	dailyMetricsOnce sync.Once
	dailyRegistry    *dailyMetrics

	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics
)

// Savings returns the lazily-initialised registry tracking ledger settlements.
func Savings() *savingsMetrics {
	savingsMetricsOnce.Do(func() {
		savingsRegistry = &savingsMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "savings",
				Name:      "deposits_total",
				Help:      "Count of savings deposits segmented by asset.",
			}, []string{"asset"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "savings",
				Name:      "withdrawals_total",
				Help:      "Count of savings withdrawals segmented by asset.",
			}, []string{"asset"}),
			skips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "savings",
				Name:      "settlement_skips_total",
				Help:      "Count of settlements skipped without failing the primary trade, segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			savingsRegistry.deposits,
			savingsRegistry.withdrawals,
			savingsRegistry.skips,
		)
	})
	return savingsRegistry
}

// RecordDeposit increments the deposit counter for the supplied asset ticker.
func (m *savingsMetrics) RecordDeposit(asset string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(labelAsset(asset)).Inc()
}

// RecordWithdrawal increments the withdrawal counter for the supplied asset.
func (m *savingsMetrics) RecordWithdrawal(asset string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(labelAsset(asset)).Inc()
}

// RecordSkip counts a settlement that degraded to a diagnostic. Reasons
// should be stable strings so dashboards and alerts remain consistent.
func (m *savingsMetrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.skips.WithLabelValues(reason).Inc()
}

// DCA returns the metrics registry for the conversion queue.
func DCA() *dcaMetrics {
	dcaMetricsOnce.Do(func() {
		dcaRegistry = &dcaMetrics{
			queued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "dca",
				Name:      "orders_queued_total",
				Help:      "Count of conversion orders appended to user queues.",
			}),
			executed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "dca",
				Name:      "orders_executed_total",
				Help:      "Count of conversion orders executed.",
			}),
			skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "dca",
				Name:      "orders_skipped_total",
				Help:      "Count of conversion orders skipped segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(dcaRegistry.queued, dcaRegistry.executed, dcaRegistry.skipped)
	})
	return dcaRegistry
}

func (m *dcaMetrics) RecordQueued() {
	if m == nil {
		return
	}
	m.queued.Inc()
}

func (m *dcaMetrics) RecordExecuted() {
	if m == nil {
		return
	}
	m.executed.Inc()
}

func (m *dcaMetrics) RecordSkipped(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.skipped.WithLabelValues(reason).Inc()
}

// Daily returns the metrics registry for the recurring-contribution engine.
func Daily() *dailyMetrics {
	dailyMetricsOnce.Do(func() {
		dailyRegistry = &dailyMetrics{
			executions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "daily",
				Name:      "executions_total",
				Help:      "Count of daily contribution sweeps that accrued at least one day.",
			}),
			penalties: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "daily",
				Name:      "penalties_total",
				Help:      "Count of early withdrawals that forfeited a penalty, segmented by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(dailyRegistry.executions, dailyRegistry.penalties)
	})
	return dailyRegistry
}

func (m *dailyMetrics) RecordExecution() {
	if m == nil {
		return
	}
	m.executions.Inc()
}

func (m *dailyMetrics) RecordPenalty(asset string) {
	if m == nil {
		return
	}
	m.penalties.WithLabelValues(labelAsset(asset)).Inc()
}

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nestegg",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nestegg",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}
