// Package metrics declares every Prometheus vector the pipeline exposes,
// generalizing metrics.go's pattern of package-level vars registered once
// in init() via prometheus.MustRegister.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Suppression Chain (spec §4.8)
	Suppressions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_suppressions_total",
		Help: "Candidate signals suppressed, by reason.",
	}, []string{"reason"})

	Emissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_emissions_total",
		Help: "Candidate signals that passed the suppression chain, by ticker.",
	}, []string{"ticker", "side"})

	// Rate Limiter (spec §4.2)
	BucketTokens = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_bucket_tokens",
		Help: "Current token count per tier.",
	}, []string{"tier"})

	ReserveFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_reserve_fallback_total",
		Help: "Reserve-tier fallback consumes, by tier.",
	}, []string{"tier"})

	// Quote Ingestor (spec §4.4)
	IngestAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_ingest_attempts_total",
		Help: "Quote ingest attempts, by tier and outcome.",
	}, []string{"tier", "outcome"})

	// Basket Aggregator (spec §4.9)
	BasketWindowSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_basket_window_size",
		Help: "Current number of entries in each basket's sliding window.",
	}, []string{"basket"})

	BasketFires = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_basket_fires_total",
		Help: "Inverse-ETF entries emitted by the basket aggregator.",
	}, []string{"basket", "etf"})

	// Risk Manager (spec §4.10)
	RiskCurrentPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_risk_current_pct",
		Help: "Current sum of open-position risk percent.",
	})

	RiskDailyPnLPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_risk_daily_pnl_pct",
		Help: "Daily realized PnL percent.",
	})

	KillSwitchTripped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_kill_switch_tripped",
		Help: "1 if the daily-loss kill switch has tripped this session, else 0.",
	})

	// Order Dispatcher (spec §4.11)
	OrdersSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_orders_submitted_total",
		Help: "Orders submitted to the broker, by status.",
	}, []string{"status"})

	DispatchRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_dispatch_retries_total",
		Help: "Order submission retry attempts, by attempt number.",
	}, []string{"attempt"})

	// EOD Flattener (spec §4.12)
	EODFlattensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_eod_flattens_total",
		Help: "Flatten market orders issued by the EOD flattener.",
	}, []string{"ticker"})

	// LLM Insight Gate (spec §4.6)
	LLMCallsAllowed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_llm_calls_allowed_total",
		Help: "LLM analysis calls allowed through the gate.",
	})

	LLMCallsDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_llm_calls_denied_total",
		Help: "LLM analysis calls denied by the gate, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		Suppressions, Emissions,
		BucketTokens, ReserveFallbacks,
		IngestAttempts,
		BasketWindowSize, BasketFires,
		RiskCurrentPct, RiskDailyPnLPct, KillSwitchTripped,
		OrdersSubmitted, DispatchRetries,
		EODFlattensIssued,
		LLMCallsAllowed, LLMCallsDenied,
	)
}
