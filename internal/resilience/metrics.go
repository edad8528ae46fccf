package resilience

import "github.com/prometheus/client_golang/prometheus"

const metricsSubsystem = "upstream_breaker"

// Breaker collectors, labelled by upstream target such as "commerce".
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: metricsSubsystem,
		Name:      "state",
		Help:      "Breaker state per target (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "transitions_total",
		Help:      "Breaker state changes per target.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "opened_total",
		Help:      "Times the breaker tripped open per target.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
