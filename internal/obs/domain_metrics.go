package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// POSSaleTotal counts point-of-sale checkout outcomes.
	POSSaleTotal *prometheus.CounterVec
	// POSSaleAmount records order totals in paise by payment mode.
	POSSaleAmount *prometheus.HistogramVec
	// ReceiptPrintTotal counts receipt print attempts by outcome.
	ReceiptPrintTotal *prometheus.CounterVec
	// OTPIssuedTotal counts one-time passwords issued by purpose.
	OTPIssuedTotal *prometheus.CounterVec
	// DeliveryCompletedTotal counts delivery confirmations.
	DeliveryCompletedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		POSSaleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pos_sale_total",
			Help:      "Count of point-of-sale checkout outcomes.",
		}, []string{"payment_mode", "result"})
		POSSaleAmount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pos_sale_amount_paise",
			Help:      "Distribution of order totals in paise.",
			Buckets:   []float64{5000, 10000, 25000, 50000, 100000, 250000, 500000, 1000000},
		}, []string{"payment_mode"})
		ReceiptPrintTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_print_total",
			Help:      "Count of receipt print attempts by outcome.",
		}, []string{"result"})
		OTPIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "Count of one-time passwords issued by purpose.",
		}, []string{"purpose"})
		DeliveryCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_completed_total",
			Help:      "Number of orders confirmed delivered.",
		})

		mustRegisterCollector(reg, POSSaleTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				POSSaleTotal = v
			}
		})
		mustRegisterCollector(reg, POSSaleAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				POSSaleAmount = v
			}
		})
		mustRegisterCollector(reg, ReceiptPrintTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReceiptPrintTotal = v
			}
		})
		mustRegisterCollector(reg, OTPIssuedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OTPIssuedTotal = v
			}
		})
		mustRegisterCollector(reg, DeliveryCompletedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				DeliveryCompletedTotal = v
			}
		})
	})
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
