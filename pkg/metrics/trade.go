package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TradeTransitionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamtoken",
		Name:      "trade_transition_total",
		Help:      "Submission state transitions.",
	}, []string{"from", "to"})

	// outcome: confirmed / 失败原因
	TradeOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamtoken",
		Name:      "trade_outcome_total",
		Help:      "Terminal outcomes of trade attempts.",
	}, []string{"side", "outcome"})

	TradePhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teamtoken",
		Name:      "trade_phase_duration_seconds",
		Help:      "Time spent in each in-flight phase.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms ~ 16s
	}, []string{"phase"})

	TradeInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "teamtoken",
		Name:      "trade_in_flight",
		Help:      "Attempts currently between Building and a terminal state.",
	})

	RPCCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teamtoken",
		Name:      "solana_rpc_duration_seconds",
		Help:      "Solana JSON-RPC latency",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"method", "status"})
)
