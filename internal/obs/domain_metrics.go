package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutSubmitTotal counts order submissions by result.
	CheckoutSubmitTotal *prometheus.CounterVec
	// PaymentInitiateTotal counts payment session requests by result.
	PaymentInitiateTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts classified payment returns by outcome.
	PaymentCallbackTotal *prometheus.CounterVec
	// PaymentCancelTotal counts cancel-payment calls by result (ok, failed, enqueued).
	PaymentCancelTotal *prometheus.CounterVec
	// VoucherValidateTotal counts voucher validations by result.
	VoucherValidateTotal *prometheus.CounterVec
	// UpstreamLatency records commerce API call latency in milliseconds.
	UpstreamLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_submit_total",
			Help:      "Count of order submissions by result.",
		}, []string{"result"})
		PaymentInitiateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_initiate_total",
			Help:      "Count of payment session requests by result.",
		}, []string{"result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of payment returns by classified outcome.",
		}, []string{"outcome"})
		PaymentCancelTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_cancel_total",
			Help:      "Count of cancel-payment attempts by result.",
		}, []string{"result"})
		VoucherValidateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_validate_total",
			Help:      "Count of voucher validations by result.",
		}, []string{"result"})
		UpstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_ms",
			Help:      "Latency of commerce API calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 8000},
		}, []string{"operation", "result"})

		mustRegisterCollector(reg, CheckoutSubmitTotal, reuseCounterVec(&CheckoutSubmitTotal))
		mustRegisterCollector(reg, PaymentInitiateTotal, reuseCounterVec(&PaymentInitiateTotal))
		mustRegisterCollector(reg, PaymentCallbackTotal, reuseCounterVec(&PaymentCallbackTotal))
		mustRegisterCollector(reg, PaymentCancelTotal, reuseCounterVec(&PaymentCancelTotal))
		mustRegisterCollector(reg, VoucherValidateTotal, reuseCounterVec(&VoucherValidateTotal))
		mustRegisterCollector(reg, UpstreamLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				UpstreamLatency = v
			}
		})
	})
}

func reuseCounterVec(dst **prometheus.CounterVec) func(prometheus.Collector) {
	return func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			*dst = v
		}
	}
}

// Inc increments vec for labels when the metric has been registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
