package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCheckoutMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.ObserveQuote(QuoteApplied, 40*time.Millisecond)
	m.ObserveQuote(QuoteStale, 10*time.Millisecond)
	m.ObserveQuote(QuoteStale, 10*time.Millisecond)
	m.IncPlaced("cod", 229900)
	m.IncFailure("COD_UNAVAILABLE")
	m.IncVerification("failed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name  string
		label string
		value string
		want  float64
	}{
		{"storefront_checkout_quotes_total", "result", QuoteApplied, 1},
		{"storefront_checkout_quotes_total", "result", QuoteStale, 2},
		{"storefront_checkout_orders_placed_total", "payment_method", "cod", 1},
		{"storefront_checkout_placement_failures_total", "code", "COD_UNAVAILABLE", 1},
		{"storefront_checkout_payment_verifications_total", "result", "failed", 1},
	}
	for _, c := range checks {
		got, err := fetchCounterValue(mfs, c.name, c.label, c.value)
		if err != nil {
			t.Fatalf("fetch %s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s{%s=%s}: expected %v, got %v", c.name, c.label, c.value, c.want, got)
		}
	}

	if sum, err := fetchHistogramSum(mfs, "storefront_checkout_order_total_rupees", "payment_method", "cod"); err != nil {
		t.Fatalf("fetch order value: %v", err)
	} else if sum != 2299 {
		t.Fatalf("expected order value sum 2299, got %v", sum)
	}
}

func TestCheckoutMetricsNilSafe(t *testing.T) {
	var m *CheckoutMetrics
	m.ObserveQuote(QuoteApplied, time.Second)
	m.IncPlaced("online", 100)
	m.IncFailure("X")
	m.IncVerification("ok")

	NewCheckoutMetrics(nil).IncPlaced("cod", 1)
}
