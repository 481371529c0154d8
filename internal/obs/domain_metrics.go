package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentOperationTotal counts relay operations by normalized outcome.
	PaymentOperationTotal *prometheus.CounterVec
	// ProviderRequestTotal counts calls to the payment provider by outcome.
	ProviderRequestTotal *prometheus.CounterVec
	// ProviderRequestDuration records provider call latency in milliseconds, retries included.
	ProviderRequestDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers payment relay collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentOperationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_operation_total",
			Help:      "Count of payment relay operations by normalized status.",
		}, []string{"operation", "status"})
		ProviderRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_request_total",
			Help:      "Count of payment provider requests by outcome.",
		}, []string{"operation", "outcome"})
		ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_ms",
			Help:      "Payment provider request latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"operation"})

		registerOrReuse(reg, &PaymentOperationTotal)
		registerOrReuse(reg, &ProviderRequestTotal)
		registerOrReuse(reg, &ProviderRequestDuration)
	})
}

// ObservePaymentOperation records the outcome of one relay operation.
func ObservePaymentOperation(operation, status string) {
	if PaymentOperationTotal == nil {
		return
	}
	PaymentOperationTotal.WithLabelValues(operation, status).Inc()
}

// ObserveProviderRequest records one provider call.
func ObserveProviderRequest(operation, outcome string, elapsed time.Duration) {
	if ProviderRequestTotal != nil {
		ProviderRequestTotal.WithLabelValues(operation, outcome).Inc()
	}
	if ProviderRequestDuration != nil {
		ProviderRequestDuration.WithLabelValues(operation).Observe(DurationMillis(elapsed))
	}
}
