package mixer

import (
	"testing"

	"github.com/example/sigpipe/internal/regime"
	"github.com/stretchr/testify/require"
)

func TestMixTrendWeightsFavorTech(t *testing.T) {
	c := Mix(Input{TechScore: 0.8, Sentiment: -0.8, Regime: regime.Trend}, 0.35, 60)
	require.Greater(t, c.Score, 0.0)
	require.True(t, c.Emit)
}

func TestMixVolSpikeWeightsFavorSentiment(t *testing.T) {
	c := Mix(Input{TechScore: 0.8, Sentiment: -0.8, Regime: regime.VolSpike}, 0.35, 60)
	require.Less(t, c.Score, 0.0)
	// 0.30*0.8 + 0.70*(-0.8) = -0.32, short of the 0.35 cutoff.
	require.False(t, c.Emit)
}

func TestMixEdgarBonusPushesScoreAwayFromZero(t *testing.T) {
	without := Mix(Input{TechScore: 0.3, Sentiment: 0.3, Regime: regime.Sideways}, 0.35, 60)
	with := Mix(Input{TechScore: 0.3, Sentiment: 0.3, Regime: regime.Sideways, IsEdgarEvent: true}, 0.35, 60)
	require.Greater(t, with.Score, without.Score)
}

func TestMixEdgarBonusPreservesSign(t *testing.T) {
	c := Mix(Input{TechScore: -0.3, Sentiment: -0.3, Regime: regime.Sideways, IsEdgarEvent: true}, 0.35, 60)
	require.Less(t, c.Score, 0.0)
}

func TestMixNoEmitBelowCutoff(t *testing.T) {
	c := Mix(Input{TechScore: 0.1, Sentiment: 0.1, Regime: regime.Sideways}, 0.35, 60)
	require.False(t, c.Emit)
}

func TestMixUnknownRegimeFallsBackToSideways(t *testing.T) {
	c := Mix(Input{TechScore: 1, Sentiment: -1, Regime: "bogus"}, 0.35, 60)
	require.InDelta(t, WeightTable[regime.Sideways].Tech*1+WeightTable[regime.Sideways].Sentiment*-1, c.Score, 1e-9)
}

func TestMixScoreClampedToUnitRange(t *testing.T) {
	c := Mix(Input{TechScore: 1, Sentiment: 1, Regime: regime.Trend, IsEdgarEvent: true}, 0.1, 60)
	require.LessOrEqual(t, c.Score, 1.0)
}
