package metrics

import "github.com/prometheus/client_golang/prometheus"

// 限流与熔断
var (
	HTTPRateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamtoken",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-ip rate limiter.",
	}, []string{"service", "route"})

	// reason: open / half_open_full
	BreakerRejectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamtoken",
		Name:      "breaker_reject_total",
		Help:      "Calls rejected by a circuit breaker without reaching the dependency.",
	}, []string{"service", "method", "reason"})

	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "teamtoken",
		Name:      "breaker_state",
		Help:      "Circuit breaker state, 1 for the current state.",
	}, []string{"service", "method", "state"})
)

func MustRegister() {
	prometheus.MustRegister(HTTPRateLimitedTotal, BreakerRejectTotal, BreakerState)
	prometheus.MustRegister(TradeTransitionTotal, TradeOutcomeTotal, TradePhaseDuration, TradeInFlight, RPCCallDuration)
}
