// Package metrics defines the Prometheus collectors shared by the api and the
// worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	donationsRecorded *prometheus.CounterVec
	donationsSettled  *prometheus.CounterVec
	raisedUnits       prometheus.Counter
	walletConnects    *prometheus.CounterVec
	telegramAuth      *prometheus.CounterVec
	aiRequests        *prometheus.CounterVec
	sealWait          prometheus.Histogram
	totalsDrift       prometheus.Counter
}

// New registers every collector on reg. Passing a fresh registry keeps tests
// isolated from the process-wide default.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charity_http_requests_total",
				Help: "HTTP requests by route pattern, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		httpLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "charity_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route"},
		),
		donationsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charity_donations_recorded_total",
				Help: "Donations accepted by the api, by network",
			},
			[]string{"network"},
		),
		donationsSettled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charity_donations_settled_total",
				Help: "Donations that left PENDING, by outcome",
			},
			[]string{"outcome"},
		),
		raisedUnits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "charity_raised_tokens_total",
				Help: "Sum of confirmed donation amounts in whole tokens",
			},
		),
		walletConnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charity_wallet_connects_total",
				Help: "Wallet connection attempts by provider and result",
			},
			[]string{"provider", "result"},
		),
		telegramAuth: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charity_telegram_auth_total",
				Help: "Telegram init data validations by result",
			},
			[]string{"result"},
		),
		aiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charity_ai_requests_total",
				Help: "AI completion requests by provider and kind",
			},
			[]string{"provider", "kind"},
		),
		sealWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "charity_seal_wait_seconds",
				Help:    "Time spent waiting for donation transactions to seal",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
		),
		totalsDrift: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "charity_totals_drift_total",
				Help: "Project totals corrected by reconciliation",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) DonationRecorded(network string) {
	if m == nil {
		return
	}
	m.donationsRecorded.WithLabelValues(network).Inc()
}

// DonationConfirmed counts a confirmation and the amount raised.
func (m *Metrics) DonationConfirmed(amount float64) {
	if m == nil {
		return
	}
	m.donationsSettled.WithLabelValues("confirmed").Inc()
	m.raisedUnits.Add(amount)
}

func (m *Metrics) DonationFailed() {
	if m == nil {
		return
	}
	m.donationsSettled.WithLabelValues("failed").Inc()
}

func (m *Metrics) WalletConnect(provider string, ok bool) {
	if m == nil {
		return
	}
	m.walletConnects.WithLabelValues(provider, result(ok)).Inc()
}

func (m *Metrics) TelegramAuth(result string) {
	if m == nil {
		return
	}
	m.telegramAuth.WithLabelValues(result).Inc()
}

func (m *Metrics) AIRequest(provider, kind string) {
	if m == nil {
		return
	}
	m.aiRequests.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) SealWait(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sealWait.Observe(elapsed.Seconds())
}

func (m *Metrics) TotalsDrift(n int) {
	if m == nil {
		return
	}
	m.totalsDrift.Add(float64(n))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
