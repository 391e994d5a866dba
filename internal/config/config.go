package config

import "time"

// RiskConfig holds the Risk Manager's pre-trade and sizing knobs (spec §4.10).
type RiskConfig struct {
	RiskPerTrade       float64
	MaxConcurrentRisk  float64
	MaxPositions       int
	MinSlots           int
	MaxEquityExposure  float64
	DailyLossLimit     float64
	LeveragedShrink    float64
	FractionalEnabled  bool
}

// MixerConfig holds the Signal Mixer and cutoff knobs (spec §4.7, §4.8).
type MixerConfig struct {
	Threshold        float64 // MIXER_THRESHOLD, the single source of truth
	CutoffRTHDelta   float64 // test-mode delta only; zero in production
	CutoffEXTDelta   float64
}

// AntiSpamConfig holds cooldown/lock knobs (spec §4.8, §4.9).
type AntiSpamConfig struct {
	CooldownSeconds      int
	DirectionLockSeconds int
	ETFLockTTLSeconds    int
	DailyCapPerTicker    int
	DailyCapGlobal       int
}

// TierConfig describes one polling tier's universe and cadence (spec §4.4).
type TierConfig struct {
	Tickers        []string
	CadenceSeconds int
}

// TiersConfig groups the three polling tiers.
type TiersConfig struct {
	A     TierConfig
	B     TierConfig
	Bench TierConfig
}

// BucketConfig describes one token bucket's capacity (spec §4.2).
type BucketConfig struct {
	TokensA, TokensB, TokensReserve int
	RefillPeriod                    time.Duration
}

// LLMGateConfig holds the LLM Insight Gate's budget knobs (spec §4.6).
type LLMGateConfig struct {
	MinSignalScore   float64
	DailyCallLimit   int
	RequiredEvents   []string
	CacheTTL         time.Duration
}

// BasketConfig describes one predefined basket (spec §4.9).
type BasketConfig struct {
	ID            string
	Members       []string
	TargetETF     string
	MinSignals    int
	NegFraction   float64
	MeanThreshold float64
	Window        time.Duration
}

// EODConfig holds end-of-day flatten/cleanup window knobs (spec §4.12).
type EODConfig struct {
	FlattenMinutesBeforeClose int
	OPGCleanupStart           string // "HH:MM" exchange-local
	OPGCleanupEnd             string
}

// Config is the single, explicitly-constructed configuration object every
// stateful component takes as a dependency. Mirrors the teacher's Config
// (config.go) generalized to the full spec.md §6 option table; no
// component reads env directly once constructed from this.
type Config struct {
	ExchangeTimezone string

	Risk       RiskConfig
	Mixer      MixerConfig
	AntiSpam   AntiSpamConfig
	Tiers      TiersConfig
	Buckets    BucketConfig
	LLMGate    LLMGateConfig
	Baskets    []BasketConfig
	InverseETFs   []string
	LeveragedETFs []string
	EOD        EODConfig

	AutoMode bool // when off, dispatcher only logs intents
	TestMode bool // enables test-only overrides (cutoff delta, etc.)

	Port              int
	Broker            string // "paper" | "bridge"
	BridgeURL         string
	StateFile         string
	StateSaveInterval time.Duration
	SlackWebhook      string
	AuditDBPath       string

	PipelineTick     time.Duration
	SignalTick       time.Duration
	HousekeepingTick time.Duration

	BarRetentionCount int
	QuoteTimeout      time.Duration
	BrokerTimeout     time.Duration
}

// LoadFromEnv reads the process env (already hydrated by LoadEnv()) and
// returns a Config with sane defaults, exactly mirroring the teacher's
// loadConfigFromEnv: one function, fully defaulted, no partials.
func LoadFromEnv() Config {
	testMode := getEnvBool("TEST_MODE", false)

	mixerThreshold := getEnvFloat("MIXER_THRESHOLD", 0.35)
	cutoffRTH := getEnvFloat("SIGNAL_CUTOFF_RTH", mixerThreshold)
	cutoffEXT := getEnvFloat("SIGNAL_CUTOFF_EXT", mixerThreshold)
	if !testMode {
		cutoffRTH, cutoffEXT = mixerThreshold, mixerThreshold
	}

	return Config{
		ExchangeTimezone: getEnv("EXCHANGE_TIMEZONE", "America/New_York"),

		Risk: RiskConfig{
			RiskPerTrade:      getEnvFloat("RISK_PER_TRADE", 0.005),
			MaxConcurrentRisk: getEnvFloat("MAX_CONCURRENT_RISK", 0.02),
			MaxPositions:      getEnvInt("MAX_POSITIONS", 10),
			MinSlots:          getEnvInt("MIN_SLOTS", 5),
			MaxEquityExposure: getEnvFloat("MAX_EQUITY_EXPOSURE", 0.8),
			DailyLossLimit:    getEnvFloat("DAILY_LOSS_LIMIT", 0.02),
			LeveragedShrink:   getEnvFloat("LEVERAGED_SHRINK_FACTOR", 0.5),
			FractionalEnabled: getEnvBool("FRACTIONAL_ENABLED", false),
		},
		Mixer: MixerConfig{
			Threshold:      mixerThreshold,
			CutoffRTHDelta: cutoffRTH - mixerThreshold,
			CutoffEXTDelta: cutoffEXT - mixerThreshold,
		},
		AntiSpam: AntiSpamConfig{
			CooldownSeconds:      getEnvInt("COOLDOWN_SECONDS", 120),
			DirectionLockSeconds: getEnvInt("DIRECTION_LOCK_SECONDS", 300),
			ETFLockTTLSeconds:    getEnvInt("ETF_LOCK_TTL_SECONDS", 90),
			DailyCapPerTicker:    getEnvInt("SESSION_DAILY_CAP_PER_TICKER", 6),
			DailyCapGlobal:       getEnvInt("SESSION_DAILY_CAP_GLOBAL", 40),
		},
		Tiers: TiersConfig{
			A:     TierConfig{Tickers: getEnvList("TIER_A_TICKERS", []string{"AAPL", "MSFT", "TSLA", "AMZN", "META", "GOOGL", "NVDA"}), CadenceSeconds: getEnvInt("TIER_A_CADENCE_SECONDS", 15)},
			B:     TierConfig{Tickers: getEnvList("TIER_B_TICKERS", []string{"JNJ", "PG", "KO"}), CadenceSeconds: getEnvInt("TIER_B_CADENCE_SECONDS", 60)},
			Bench: TierConfig{Tickers: getEnvList("TIER_BENCH_TICKERS", nil), CadenceSeconds: getEnvInt("TIER_BENCH_CADENCE_SECONDS", 300)},
		},
		Buckets: BucketConfig{
			TokensA:       getEnvInt("TOKENS_A", 120),
			TokensB:       getEnvInt("TOKENS_B", 60),
			TokensReserve: getEnvInt("TOKENS_RESERVE", 20),
			RefillPeriod:  time.Duration(getEnvInt("REFILL_PERIOD_SECONDS", 60)) * time.Second,
		},
		LLMGate: LLMGateConfig{
			MinSignalScore: getEnvFloat("LLM_MIN_SIGNAL_SCORE", 0.6),
			DailyCallLimit: getEnvInt("LLM_DAILY_CALL_LIMIT", 200),
			RequiredEvents: getEnvList("LLM_REQUIRED_EVENTS", []string{"edgar", "vol_spike", "fed_speech", "rate_decision", "market_news", "tech_earnings"}),
			CacheTTL:       time.Duration(getEnvInt("LLM_CACHE_TTL_SECONDS", 1800)) * time.Second,
		},
		Baskets:       defaultBaskets(),
		InverseETFs:   getEnvList("INVERSE_ETFS", []string{"SQQQ", "SOXS"}),
		LeveragedETFs: getEnvList("LEVERAGED_ETFS", []string{"SQQQ", "SOXS"}),
		EOD: EODConfig{
			FlattenMinutesBeforeClose: getEnvInt("EOD_FLATTEN_MINUTES", 5),
			OPGCleanupStart:           getEnv("OPG_CLEANUP_WINDOW_START", "09:25"),
			OPGCleanupEnd:             getEnv("OPG_CLEANUP_WINDOW_END", "09:35"),
		},

		AutoMode: getEnvBool("AUTO_MODE", false),
		TestMode: testMode,

		Port:              getEnvInt("PORT", 8090),
		Broker:            getEnv("BROKER", "paper"),
		BridgeURL:         getEnv("BRIDGE_URL", "http://127.0.0.1:8787"),
		StateFile:         getEnv("STATE_FILE", "pipeline_state.json"),
		StateSaveInterval: time.Duration(getEnvInt("STATE_SAVE_INTERVAL_SECONDS", 30)) * time.Second,
		SlackWebhook:      getEnv("SLACK_WEBHOOK", ""),
		AuditDBPath:       getEnv("AUDIT_DB_PATH", "audit.db"),

		PipelineTick:     time.Duration(getEnvInt("PIPELINE_TICK_SECONDS", 15)) * time.Second,
		SignalTick:       time.Duration(getEnvInt("SIGNAL_TICK_SECONDS", 30)) * time.Second,
		HousekeepingTick: time.Duration(getEnvInt("HOUSEKEEPING_TICK_SECONDS", 300)) * time.Second,

		BarRetentionCount: getEnvInt("BAR_RETENTION_COUNT", 120),
		QuoteTimeout:      time.Duration(getEnvInt("QUOTE_TIMEOUT_SECONDS", 5)) * time.Second,
		BrokerTimeout:     time.Duration(getEnvInt("BROKER_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

func defaultBaskets() []BasketConfig {
	mega := BasketConfig{
		ID:            "MEGATECH",
		Members:       getEnvList("BASKET_MEGATECH_MEMBERS", []string{"AAPL", "MSFT", "TSLA", "AMZN", "META", "GOOGL"}),
		TargetETF:     getEnv("BASKET_MEGATECH_TARGET_ETF", "SQQQ"),
		MinSignals:    getEnvInt("BASKET_MEGATECH_MIN_SIGNALS", 3),
		NegFraction:   getEnvFloat("BASKET_MEGATECH_NEG_FRACTION", 0.6),
		MeanThreshold: getEnvFloat("BASKET_MEGATECH_MEAN_THRESHOLD", -0.12),
		Window:        time.Duration(getEnvInt("BASKET_MEGATECH_WINDOW_SECONDS", 60)) * time.Second,
	}
	semis := BasketConfig{
		ID:            "SEMIS",
		Members:       getEnvList("BASKET_SEMIS_MEMBERS", []string{"NVDA", "AMD", "INTC", "AVGO", "QCOM"}),
		TargetETF:     getEnv("BASKET_SEMIS_TARGET_ETF", "SOXS"),
		MinSignals:    getEnvInt("BASKET_SEMIS_MIN_SIGNALS", 3),
		NegFraction:   getEnvFloat("BASKET_SEMIS_NEG_FRACTION", 0.6),
		MeanThreshold: getEnvFloat("BASKET_SEMIS_MEAN_THRESHOLD", -0.12),
		Window:        time.Duration(getEnvInt("BASKET_SEMIS_WINDOW_SECONDS", 60)) * time.Second,
	}
	return []BasketConfig{mega, semis}
}

// CutoffFor returns the session-specific score cutoff, the single source
// of truth shared with the mixer threshold (Open Question 1: specified
// equal; the delta is zero outside test mode).
func (c Config) CutoffFor(isRTH bool) float64 {
	if isRTH {
		return c.Mixer.Threshold + c.Mixer.CutoffRTHDelta
	}
	return c.Mixer.Threshold + c.Mixer.CutoffEXTDelta
}
