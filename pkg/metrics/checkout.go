package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Quote outcomes.
const (
	QuoteApplied     = "applied"
	QuoteStale       = "stale"
	QuoteUnavailable = "unavailable"
)

// CheckoutMetrics counts quote and placement outcomes.
type CheckoutMetrics struct {
	quotes        *prometheus.CounterVec
	quoteDuration prometheus.Histogram
	placed        *prometheus.CounterVec
	failures      *prometheus.CounterVec
	verifications *prometheus.CounterVec
	orderValue    *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics. A nil registerer yields a
// no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "quotes_total",
			Help:      "Checkout quotes by outcome.",
		}, []string{"result"}),
		quoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "quote_duration_seconds",
			Help:      "Time spent computing a checkout quote.",
			Buckets:   prometheus.DefBuckets,
		}),
		placed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "orders_placed_total",
			Help:      "Orders written by payment method.",
		}, []string{"payment_method"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "placement_failures_total",
			Help:      "Order placement failures by error code.",
		}, []string{"code"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "payment_verifications_total",
			Help:      "Online payment verifications by outcome.",
		}, []string{"result"}),
		orderValue: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "order_total_rupees",
			Help:      "Order totals in rupees.",
			Buckets:   []float64{250, 500, 1000, 2000, 5000, 10000, 25000},
		}, []string{"payment_method"}),
	}
	reg.MustRegister(m.quotes, m.quoteDuration, m.placed, m.failures, m.verifications, m.orderValue)
	return m
}

func (m *CheckoutMetrics) ObserveQuote(result string, duration time.Duration) {
	if m == nil || m.quotes == nil {
		return
	}
	m.quotes.WithLabelValues(normalizeLabel(result)).Inc()
	m.quoteDuration.Observe(duration.Seconds())
}

// IncPlaced records a written order and its total in paise.
func (m *CheckoutMetrics) IncPlaced(paymentMethod string, totalPaise int64) {
	if m == nil || m.placed == nil {
		return
	}
	label := normalizeLabel(paymentMethod)
	m.placed.WithLabelValues(label).Inc()
	m.orderValue.WithLabelValues(label).Observe(float64(totalPaise) / 100)
}

func (m *CheckoutMetrics) IncFailure(code string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *CheckoutMetrics) IncVerification(result string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(result)).Inc()
}
