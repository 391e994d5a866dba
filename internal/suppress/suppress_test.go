package suppress

import (
	"testing"
	"time"

	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/stretchr/testify/require"
)

type alwaysOKRisk struct{}

func (alwaysOKRisk) CheckFeasibility(ticker string, side Side, score, entry, stop float64) (bool, string) {
	return true, ""
}

type alwaysRejectRisk struct{}

func (alwaysRejectRisk) CheckFeasibility(ticker string, side Side, score, entry, stop float64) (bool, string) {
	return false, "daily_loss_limit"
}

func newChain() (*Chain, *clock.FixedClock) {
	fc := &clock.FixedClock{At: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	cfg := config.AntiSpamConfig{
		CooldownSeconds:      120,
		DirectionLockSeconds: 300,
		DailyCapPerTicker:    2,
		DailyCapGlobal:       10,
	}
	return New(cfg, fc), fc
}

func baseCandidate(fc *clock.FixedClock) Candidate {
	return Candidate{Ticker: "AAPL", Side: Buy, Score: 0.5, BarTS: fc.At, DayKey: "2026-01-01"}
}

func TestEvaluateBelowCutoff(t *testing.T) {
	c, fc := newChain()
	cand := baseCandidate(fc)
	cand.Score = 0.1
	require.Equal(t, BelowCutoff, c.Evaluate(cand, 0.35, false, alwaysOKRisk{}))
}

func TestEvaluateEmitsAndRecordsThenCooldownBlocks(t *testing.T) {
	c, fc := newChain()
	cand := baseCandidate(fc)
	require.Equal(t, Emitted, c.Evaluate(cand, 0.35, false, alwaysOKRisk{}))
	c.RecordEmission(cand)

	fc.At = fc.At.Add(10 * time.Second)
	cand2 := baseCandidate(fc)
	cand2.BarTS = fc.At
	require.Equal(t, MixerCooldown, c.Evaluate(cand2, 0.35, false, alwaysOKRisk{}))
}

func TestEvaluateDirectionLockBlocksOpposingSide(t *testing.T) {
	c, fc := newChain()
	cand := baseCandidate(fc)
	require.Equal(t, Emitted, c.Evaluate(cand, 0.35, false, alwaysOKRisk{}))
	c.RecordEmission(cand)

	fc.At = fc.At.Add(130 * time.Second) // past cooldown, inside direction lock
	opp := baseCandidate(fc)
	opp.Side = Sell
	opp.Score = -0.5
	opp.BarTS = fc.At
	require.Equal(t, DirectionLock, c.Evaluate(opp, 0.35, false, alwaysOKRisk{}))
}

func TestEvaluateDupEventBlocksIdenticalSignal(t *testing.T) {
	c, fc := newChain()
	cand := baseCandidate(fc)
	c.RecordEmission(cand)
	fc.At = fc.At.Add(130 * time.Second) // past cooldown; same bar ts and score
	require.Equal(t, DupEvent, c.Evaluate(cand, 0.35, false, alwaysOKRisk{}))
}

func TestEvaluateSessionDailyCapPerTicker(t *testing.T) {
	c, fc := newChain()
	for i := 0; i < 2; i++ {
		fc.At = fc.At.Add(time.Duration(i) * 10 * time.Minute)
		cand := baseCandidate(fc)
		cand.BarTS = fc.At
		require.Equal(t, Emitted, c.Evaluate(cand, 0.35, false, alwaysOKRisk{}))
		c.RecordEmission(cand)
	}
	fc.At = fc.At.Add(20 * time.Minute)
	cand := baseCandidate(fc)
	cand.BarTS = fc.At
	require.Equal(t, SessionDailyCap, c.Evaluate(cand, 0.35, false, alwaysOKRisk{}))
}

func TestEvaluateLLMGateDenial(t *testing.T) {
	c, fc := newChain()
	cand := baseCandidate(fc)
	require.Equal(t, LLMGate, c.Evaluate(cand, 0.35, true, alwaysOKRisk{}))
}

func TestEvaluateRiskFeasibilityDenial(t *testing.T) {
	c, fc := newChain()
	cand := baseCandidate(fc)
	require.Equal(t, RiskFeasibility, c.Evaluate(cand, 0.35, false, alwaysRejectRisk{}))
}

func TestDailyCountersResetOnNewDay(t *testing.T) {
	c, fc := newChain()
	cand := baseCandidate(fc)
	c.Evaluate(cand, 0.35, false, alwaysOKRisk{})
	c.RecordEmission(cand)
	global, perTicker := c.DailyCounts()
	require.Equal(t, 1, global)
	require.Equal(t, 1, perTicker["AAPL"])

	fc.At = fc.At.Add(24 * time.Hour)
	cand2 := cand
	cand2.DayKey = "2026-01-02"
	cand2.BarTS = fc.At
	require.Equal(t, Emitted, c.Evaluate(cand2, 0.35, false, alwaysOKRisk{}))
	global, perTicker = c.DailyCounts()
	require.Equal(t, 0, global)
	require.Empty(t, perTicker)
}
