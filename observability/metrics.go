package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	coreerrors "arthcore/core/errors"
)

var (
	stableOnce sync.Once
	stableReg  *StableMetrics

	feederOnce sync.Once
	feederReg  *FeederMetrics
)

// StableMetrics captures metrics for the ratio controller and the collateral
// pools.
type StableMetrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	ratio      prometheus.Gauge
	paused     prometheus.Gauge
	price      *prometheus.GaugeVec
	collateral *prometheus.GaugeVec
	pending    *prometheus.GaugeVec
}

// Stable returns the singleton metrics registry for controller and pool
// operations.
func Stable() *StableMetrics {
	stableOnce.Do(func() {
		stableReg = &StableMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arth",
				Subsystem: "core",
				Name:      "operations_total",
				Help:      "Count of controller and pool operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "arth",
				Subsystem: "core",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for controller and pool operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arth",
				Subsystem: "core",
				Name:      "errors_total",
				Help:      "Count of rejected operations segmented by operation and error kind.",
			}, []string{"operation", "kind"}),
			ratio: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "arth",
				Subsystem: "ratio",
				Name:      "collateral_ratio",
				Help:      "Current global collateral ratio as a fraction of one.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "arth",
				Subsystem: "ratio",
				Name:      "paused",
				Help:      "Whether ratio refreshes are paused (1) or active (0).",
			}),
			price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arth",
				Subsystem: "oracle",
				Name:      "price_gmu",
				Help:      "Last price read per route in GMU.",
			}, []string{"route"}),
			collateral: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arth",
				Subsystem: "pool",
				Name:      "collateral_balance",
				Help:      "Collateral held per pool in native token units.",
			}, []string{"pool"}),
			pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arth",
				Subsystem: "pool",
				Name:      "unclaimed_collateral",
				Help:      "Collateral reserved for pending redemptions per pool.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			stableReg.requests,
			stableReg.latency,
			stableReg.errors,
			stableReg.ratio,
			stableReg.paused,
			stableReg.price,
			stableReg.collateral,
			stableReg.pending,
		)
	})
	return stableReg
}

// Observe records the execution metrics for an operation. Failures are
// labelled with their error kind rather than the message to keep cardinality
// bounded.
func (m *StableMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op, coreerrors.KindOf(err).String()).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRatio publishes the controller state.
func (m *StableMetrics) RecordRatio(ratio uint64, paused bool) {
	if m == nil {
		return
	}
	m.ratio.Set(float64(ratio) / 1e6)
	if paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}

// RecordPrice publishes a six decimal GMU price.
func (m *StableMetrics) RecordPrice(route string, price uint64) {
	if m == nil {
		return
	}
	m.price.WithLabelValues(labelAsset(route)).Set(float64(price) / 1e6)
}

// RecordPool publishes the ledger balances of a pool.
func (m *StableMetrics) RecordPool(pool string, balance, unclaimed *uint256.Int) {
	if m == nil {
		return
	}
	label := labelAsset(pool)
	m.collateral.WithLabelValues(label).Set(uintToFloat(balance))
	m.pending.WithLabelValues(label).Set(uintToFloat(unclaimed))
}

// FeederMetrics tracks the keeper's external price feeds.
type FeederMetrics struct {
	fetches   *prometheus.CounterVec
	freshness *prometheus.GaugeVec
	refreshes *prometheus.CounterVec
}

// Feeder exposes the metrics registry for the price feeder.
func Feeder() *FeederMetrics {
	feederOnce.Do(func() {
		feederReg = &FeederMetrics{
			fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arth",
				Subsystem: "feeder",
				Name:      "fetches_total",
				Help:      "Count of external feed fetches segmented by feed and outcome.",
			}, []string{"feed", "outcome"}),
			freshness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arth",
				Subsystem: "feeder",
				Name:      "observation_age_seconds",
				Help:      "Age of the last observation accepted per feed.",
			}, []string{"feed"}),
			refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arth",
				Subsystem: "feeder",
				Name:      "twap_refreshes_total",
				Help:      "Count of TWAP window refreshes segmented by route and outcome.",
			}, []string{"route", "outcome"}),
		}
		prometheus.MustRegister(feederReg.fetches, feederReg.freshness, feederReg.refreshes)
	})
	return feederReg
}

func (m *FeederMetrics) RecordFetch(feed string, age time.Duration, err error) {
	if m == nil {
		return
	}
	label := labelAsset(feed)
	if err != nil {
		m.fetches.WithLabelValues(label, "error").Inc()
		return
	}
	m.fetches.WithLabelValues(label, "success").Inc()
	if age < 0 {
		age = 0
	}
	m.freshness.WithLabelValues(label).Set(age.Seconds())
}

func (m *FeederMetrics) RecordRefresh(route string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.refreshes.WithLabelValues(labelAsset(route), outcome).Inc()
}

func labelAsset(asset string) string {
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func uintToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value.ToBig()).Float64()
	return f
}
