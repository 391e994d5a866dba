package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/example/sigpipe/internal/alert"
	"github.com/example/sigpipe/internal/audit"
	"github.com/example/sigpipe/internal/bars"
	"github.com/example/sigpipe/internal/broker"
	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/llm"
	"github.com/example/sigpipe/internal/log"
	"github.com/example/sigpipe/internal/quote"
	"github.com/stretchr/testify/require"
)

// stubProvider never backfills bars itself; every test seeds bars
// directly via Pipeline.SeedBar, so Tick's fetch path is exercised
// elsewhere (internal/ingest) and not needed here.
type stubProvider struct{}

func (stubProvider) GetBars(ctx context.Context, ticker string, sinceTS time.Time) ([]bars.Bar, error) {
	return nil, nil
}

func (stubProvider) GetLastPrice(ctx context.Context, ticker string) (quote.LastPrice, error) {
	return quote.LastPrice{}, nil
}

func baseConfig() config.Config {
	return config.Config{
		Risk: config.RiskConfig{
			RiskPerTrade: 0.01, MaxConcurrentRisk: 0.5, MaxPositions: 10,
			MinSlots: 5, MaxEquityExposure: 0.9, DailyLossLimit: 0.05,
		},
		Mixer:    config.MixerConfig{Threshold: 0.1},
		AntiSpam: config.AntiSpamConfig{CooldownSeconds: 60, DirectionLockSeconds: 300, ETFLockTTLSeconds: 90, DailyCapPerTicker: 10, DailyCapGlobal: 50},
		Tiers:    config.TiersConfig{A: config.TierConfig{Tickers: []string{"NVDA"}, CadenceSeconds: 15}},
		Buckets:  config.BucketConfig{TokensA: 100, TokensB: 100, TokensReserve: 20, RefillPeriod: time.Minute},
		LLMGate:  config.LLMGateConfig{MinSignalScore: 0.9, DailyCallLimit: 50, RequiredEvents: []string{"vol_spike"}, CacheTTL: time.Minute},
		EOD:      config.EODConfig{FlattenMinutesBeforeClose: 5, OPGCleanupStart: "09:25", OPGCleanupEnd: "09:35"},

		PipelineTick: 15 * time.Second, SignalTick: 30 * time.Second, HousekeepingTick: 5 * time.Minute,
		BarRetentionCount: 120, QuoteTimeout: 5 * time.Second, BrokerTimeout: 10 * time.Second,
	}
}

func newTestPipeline(t *testing.T, at time.Time) (*Pipeline, *broker.PaperBroker, *audit.Store) {
	t.Helper()
	cfg := baseConfig()
	clk := clock.FixedClock{At: at}
	cal, err := clock.NewCalendar("America/New_York", nil)
	require.NoError(t, err)
	br := broker.NewPaper(100000)
	auditStore, err := audit.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	p := New(cfg, clk, cal, stubProvider{}, br, llm.NewStub(), auditStore, alert.NoopAlerter{})
	return p, br, auditStore
}

// seedTrendingBars feeds n bars of steadily rising (or falling, if down is
// true) closes ending at "now", enough to clear bars.Compute's 26-bar
// minimum and produce a clear trend regime classification.
func seedTrendingBars(p *Pipeline, ticker string, now time.Time, n int, down bool) {
	start := now.Add(-time.Duration(n) * 30 * time.Second)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * 30 * time.Second)
		price := 100 + float64(i)
		if down {
			price = 130 - float64(i)
		}
		p.SeedBar(bars.Bar{
			Ticker: ticker, TS: ts,
			Open: price - 0.25, High: price + 0.5, Low: price - 0.5, Close: price,
			Volume: 1000 + float64(i)*5,
		})
	}
}

func rthInstant() time.Time {
	// 2026-03-04 is before US DST starts (2026-03-08), so America/New_York
	// is UTC-5; 16:00 UTC is 11:00 local, well inside RTH (09:30-16:00).
	return time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC)
}

func TestRunSignalTickSkipsTickerWithoutEnoughBars(t *testing.T) {
	now := rthInstant()
	p, _, auditStore := newTestPipeline(t, now)
	seedTrendingBars(p, "NVDA", now, 10, false) // fewer than the 26-bar minimum

	p.RunSignalTick(context.Background())

	n, err := auditStore.CountSignals(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRunSignalTickRecordsASignalRowForEveryEvaluatedTicker(t *testing.T) {
	now := rthInstant()
	p, _, auditStore := newTestPipeline(t, now)
	seedTrendingBars(p, "NVDA", now, 30, false)

	p.RunSignalTick(context.Background())

	n, err := auditStore.CountSignals(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRunSignalTickOnUptrendNeverSubmitsASellOrder(t *testing.T) {
	now := rthInstant()
	p, br, _ := newTestPipeline(t, now)
	seedTrendingBars(p, "NVDA", now, 30, false)

	p.RunSignalTick(context.Background())

	positions, err := br.GetPositions(context.Background())
	require.NoError(t, err)
	for _, pos := range positions {
		require.GreaterOrEqual(t, pos.Qty, 0.0)
	}
}

func TestRunHousekeepingTickFlattensOpenPositionsInCloseWindow(t *testing.T) {
	// 2026-03-04 16:00 local RTH close is 21:00 UTC; 20:57 UTC sits inside
	// the configured 5-minute flatten window.
	now := time.Date(2026, 3, 4, 20, 57, 0, 0, time.UTC)
	p, br, _ := newTestPipeline(t, now)
	br.SetPosition("AAPL", 10, 150)

	p.RunHousekeepingTick(context.Background())

	positions, err := br.GetPositions(context.Background())
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestRunHousekeepingTickOutsideCloseWindowLeavesPositionsOpen(t *testing.T) {
	now := rthInstant() // midday, nowhere near the close window
	p, br, _ := newTestPipeline(t, now)
	br.SetPosition("AAPL", 10, 150)

	p.RunHousekeepingTick(context.Background())

	positions, err := br.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
}

func TestRunHousekeepingTickRepeatedInCloseWindowIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 4, 20, 57, 0, 0, time.UTC)
	p, br, _ := newTestPipeline(t, now)
	br.SetPosition("AAPL", 10, 150)

	ctx := context.Background()
	p.RunHousekeepingTick(ctx)
	p.RunHousekeepingTick(ctx)

	positions, err := br.GetPositions(ctx)
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestPositionCacheHasPositionReflectsBrokerSnapshot(t *testing.T) {
	br := broker.NewPaper(100000)
	br.SetPosition("SOXS", 5, 20)
	pc := newPositionCache(context.Background(), br, log.With("test"))

	require.True(t, pc.HasPosition("SOXS"))
	require.False(t, pc.HasPosition("SQQQ"))
}

// TestTryBasketFireHoldsLockForFullTTLAfterASuccessfulFire guards against a
// regression where the ETF single-flight lock was released immediately
// after a successful dispatch, defeating its TTL: a second basket targeting
// the same ETF within the lock window must be rejected (etf_lock), exactly
// as spec.md's basket scenario requires ("subsequent three more short
// candidates within 90s produce no additional orders, reason etf_lock").
func TestTryBasketFireHoldsLockForFullTTLAfterASuccessfulFire(t *testing.T) {
	now := rthInstant()
	cfg := baseConfig()
	cfg.Baskets = []config.BasketConfig{
		{ID: "B1", Members: []string{"AAA"}, TargetETF: "ETF1", MinSignals: 1, NegFraction: 0, MeanThreshold: 0, Window: time.Hour},
		{ID: "B2", Members: []string{"DDD"}, TargetETF: "ETF1", MinSignals: 1, NegFraction: 0, MeanThreshold: 0, Window: time.Hour},
	}

	clk := clock.FixedClock{At: now}
	cal, err := clock.NewCalendar("America/New_York", nil)
	require.NoError(t, err)
	br := broker.NewPaper(100000)
	auditStore, err := audit.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	p := New(cfg, clk, cal, stubProvider{}, br, llm.NewStub(), auditStore, alert.NoopAlerter{})
	require.NoError(t, p.SyncEquity(context.Background()))
	seedTrendingBars(p, "ETF1", now, 30, false)

	ctx := context.Background()
	positions := newPositionCache(ctx, br, log.With("test"))

	// Two consecutive ticks for basket B1 (arm, then fire).
	_, fired := p.tryBasketFire(ctx, "AAA", -0.5, positions)
	require.False(t, fired)
	_, fired = p.tryBasketFire(ctx, "AAA", -0.5, positions)
	require.True(t, fired)

	positionsAfter, err := br.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positionsAfter, 1, "B1's fire should have placed one ETF1 order")

	// B2 targets the same ETF; its own two consecutive ticks should still
	// be blocked by B1's still-held lock, not by anything B2-specific.
	_, fired = p.tryBasketFire(ctx, "DDD", -0.5, positions)
	require.False(t, fired)
	_, fired = p.tryBasketFire(ctx, "DDD", -0.5, positions)
	require.False(t, fired, "B2 must be rejected by B1's still-held ETF lock")

	positionsFinal, err := br.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positionsFinal, 1, "no additional order should have been placed while the lock is held")
}
