package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the service's Prometheus instrumentation.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	performanceRuns     *prometheus.CounterVec
	performanceDuration prometheus.Histogram

	dcaPurchasesTotal  prometheus.Counter
	dcaSweepDuration   prometheus.Histogram
	summariesRecorded  *prometheus.CounterVec
	providerCallsTotal *prometheus.CounterVec

	spotPriceGauge *prometheus.GaugeVec
}

// NewMetrics registers all collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcawallet_http_requests_total",
			Help: "Total HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcawallet_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		performanceRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcawallet_performance_runs_total",
			Help: "Performance engine runs by timespan and outcome",
		}, []string{"timespan", "outcome"}),
		performanceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcawallet_performance_duration_seconds",
			Help:    "Performance engine computation latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		dcaPurchasesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcawallet_dca_purchases_total",
			Help: "DCA purchases executed",
		}),
		dcaSweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcawallet_dca_sweep_duration_seconds",
			Help:    "DCA sweep latency",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		summariesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcawallet_summaries_recorded_total",
			Help: "Daily summaries recorded by timespan",
		}, []string{"timespan"}),
		providerCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcawallet_provider_calls_total",
			Help: "External provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),

		spotPriceGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dcawallet_spot_price",
			Help: "Last observed BTC spot price by currency",
		}, []string{"currency"}),
	}
}

// RecordHTTPRequest records one finished HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPerformanceRun records one engine computation.
func (m *Metrics) RecordPerformanceRun(timespan string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.performanceRuns.WithLabelValues(timespan, outcome).Inc()
	m.performanceDuration.Observe(duration.Seconds())
}

// RecordDCAPurchases counts purchases executed by one sweep.
func (m *Metrics) RecordDCAPurchases(count int) {
	m.dcaPurchasesTotal.Add(float64(count))
}

// RecordDCASweep records one sweep's latency.
func (m *Metrics) RecordDCASweep(duration time.Duration) {
	m.dcaSweepDuration.Observe(duration.Seconds())
}

// RecordSummary counts one recorded snapshot.
func (m *Metrics) RecordSummary(timespan string) {
	m.summariesRecorded.WithLabelValues(timespan).Inc()
}

// RecordProviderCall counts one external provider call.
func (m *Metrics) RecordProviderCall(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerCallsTotal.WithLabelValues(provider, outcome).Inc()
}

// SetSpotPrice updates the last observed spot price gauge.
func (m *Metrics) SetSpotPrice(currency string, price float64) {
	m.spotPriceGauge.WithLabelValues(currency).Set(price)
}
