package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/sigpipe/internal/basket"
	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/ratelimit"
	"github.com/example/sigpipe/internal/risk"
	"github.com/example/sigpipe/internal/suppress"
	"github.com/stretchr/testify/require"
)

func newFixture() (*risk.Manager, *suppress.Chain, *basket.Aggregator, *ratelimit.Limiter) {
	clk := clock.FixedClock{At: time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)}
	riskMgr := risk.New(config.RiskConfig{
		RiskPerTrade: 0.01, MaxConcurrentRisk: 0.05, MaxPositions: 5,
		MinSlots: 5, MaxEquityExposure: 0.5, DailyLossLimit: 0.03,
	}, 100000)
	chain := suppress.New(config.AntiSpamConfig{
		CooldownSeconds: 60, DirectionLockSeconds: 300, DailyCapPerTicker: 6, DailyCapGlobal: 40,
	}, clk)
	baskets := []config.BasketConfig{
		{ID: "semis", Members: []string{"NVDA", "AMD"}, TargetETF: "SOXS", MinSignals: 2, NegFraction: 0.5, MeanThreshold: -0.2, Window: time.Hour},
	}
	agg := basket.New(baskets, 10*time.Minute, clk)
	limiter := ratelimit.New(clk, 10, 10, 5, time.Minute)
	return riskMgr, chain, agg, limiter
}

func TestSaveThenLoadRoundTripsLedger(t *testing.T) {
	riskMgr, chain, agg, limiter := newFixture()
	riskMgr.ReserveOnFill(0.01)
	limiter.TryConsume(ratelimit.TierA, 3)

	dir := t.TempDir()
	st := New(filepath.Join(dir, "state.json"))
	require.NoError(t, st.Save(riskMgr, chain, agg, limiter))

	riskMgr2, chain2, agg2, limiter2 := newFixture()
	require.NoError(t, st.Load(riskMgr2, chain2, agg2, limiter2))

	require.Equal(t, riskMgr.Snapshot(), riskMgr2.Snapshot())
	require.Equal(t, limiter.Tokens(ratelimit.TierA), limiter2.Tokens(ratelimit.TierA))
}

func TestSaveThenLoadRoundTripsSuppressionAndBaskets(t *testing.T) {
	riskMgr, chain, agg, limiter := newFixture()

	cand := suppress.Candidate{Ticker: "NVDA", Side: suppress.Sell, Score: -0.6, Entry: 100, Stop: 102, DayKey: "2026-03-04"}
	require.Equal(t, suppress.Emitted, chain.Evaluate(cand, 0.3, false, nil))
	chain.RecordEmission(cand)

	fp := &fakePositions{}
	agg.AddShortCandidate("NVDA", -0.6, fp)
	agg.AddShortCandidate("AMD", -0.7, fp)

	dir := t.TempDir()
	st := New(filepath.Join(dir, "nested", "state.json"))
	require.NoError(t, st.Save(riskMgr, chain, agg, limiter))

	riskMgr2, chain2, agg2, limiter2 := newFixture()
	require.NoError(t, st.Load(riskMgr2, chain2, agg2, limiter2))

	global, perTicker := chain2.DailyCounts()
	require.Equal(t, 1, global)
	require.Equal(t, 1, perTicker["NVDA"])

	snap := agg2.Snapshot()
	require.Len(t, snap.Windows["semis"].Entries, 2)
}

func TestLoadMissingFileIsNoop(t *testing.T) {
	riskMgr, chain, agg, limiter := newFixture()
	st := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, st.Load(riskMgr, chain, agg, limiter))
}

func TestEmptyPathDisablesPersistence(t *testing.T) {
	riskMgr, chain, agg, limiter := newFixture()
	st := New("")
	require.NoError(t, st.Save(riskMgr, chain, agg, limiter))
	require.NoError(t, st.Load(riskMgr, chain, agg, limiter))
}

func TestLoadRejectsMismatchedSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version": 999}`), 0o644))

	riskMgr, chain, agg, limiter := newFixture()
	st := New(path)
	err := st.Load(riskMgr, chain, agg, limiter)
	require.Error(t, err)
}

type fakePositions struct{}

func (fakePositions) HasPosition(symbol string) bool { return false }
