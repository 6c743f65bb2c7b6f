package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	errs "crowdsale/core/errors"
)

// SaleMetrics tracks state-changing operations executed by the runtime.
type SaleMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	amounts    *prometheus.CounterVec
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	streams   prometheus.Gauge
}

var (
	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Sale returns the lazily-initialised sale metrics registry. It satisfies
// core.Observer.
func Sale() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "runtime",
				Name:      "operations_total",
				Help:      "State-changing operations segmented by operation and outcome kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crowdsale",
				Subsystem: "runtime",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for state transactions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "runtime",
				Name:      "amount_total",
				Help:      "Base units moved by successful operations segmented by operation and asset.",
			}, []string{"operation", "asset"}),
		}
		prometheus.MustRegister(
			saleRegistry.operations,
			saleRegistry.latency,
			saleRegistry.amounts,
		)
	})
	return saleRegistry
}

// ObserveOperation records the outcome of a runtime operation. Failures are
// labelled with their error kind.
func (m *SaleMetrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	op = normalizeLabel(op)
	outcome := "success"
	if err != nil {
		outcome = errs.KindName(err)
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveAmount adds amount to the per-asset volume of op.
func (m *SaleMetrics) ObserveAmount(op string, asset common.Address, amount *big.Int) {
	if m == nil {
		return
	}
	m.amounts.WithLabelValues(normalizeLabel(op), asset.Hex()).Add(bigToFloat(amount))
}

// HTTP returns the metrics registry of the sale daemon API.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crowdsale",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"route"}),
			streams: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "crowdsale",
				Subsystem: "http",
				Name:      "event_streams",
				Help:      "Open websocket event streams.",
			}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.latency,
			httpRegistry.throttles,
			httpRegistry.streams,
		)
	})
	return httpRegistry
}

// Observe records an API request. The status code should be the one written
// to the response writer.
func (m *httpMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route)
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for route.
func (m *httpMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(route)).Inc()
}

// StreamOpened tracks a new websocket stream; the returned func closes it.
func (m *httpMetrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.streams.Inc()
	var once sync.Once
	return func() { once.Do(m.streams.Dec) }
}

func normalizeLabel(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
