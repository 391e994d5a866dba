// Package mixer implements the Signal Mixer of spec §4.7: a
// regime-dependent weighted blend of the tech score and LLM sentiment,
// an EDGAR-event bonus, and candidate emission gated on the mixer
// threshold. Grounded on the teacher's strategy.go blended-probability
// idiom (pUp combining EMA-cross and RSI confirmation into one decision
// score) generalized to the full tech/sentiment/regime blend spec.md
// names, with regime-conditional weights sourced from poorman-
// SynapseStrike's per-regime strategy-selection table
// (decision/engine.go's regime-aware strategy routing).
package mixer

import (
	"math"

	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/regime"
)

// Weights is a (tech, sentiment) weight pair that always sums to 1.0.
type Weights struct {
	Tech, Sentiment float64
}

// WeightTable maps each regime label to its mixer weights (spec §4.7).
var WeightTable = map[regime.Label]Weights{
	regime.Trend:      {Tech: 0.75, Sentiment: 0.25},
	regime.VolSpike:   {Tech: 0.30, Sentiment: 0.70},
	regime.MeanRevert: {Tech: 0.60, Sentiment: 0.40},
	regime.Sideways:   {Tech: 0.50, Sentiment: 0.50},
}

const edgarBonus = 0.1

// Input bundles the mixer's three signal sources and the regime label
// used to select weights.
type Input struct {
	TechScore      float64
	Sentiment      float64 // 0 when no LLM insight was available
	Regime         regime.Label
	IsEdgarEvent   bool
}

// Candidate is the Signal Candidate entity of spec §3 as Mix returns it:
// Score and Horizon are always set, and Emit reports whether
// |score| >= cutoff.
type Candidate struct {
	Score   float64
	Horizon int
	Emit    bool
}

// Mix blends tech and sentiment per the regime-dependent weight table,
// applies the EDGAR bonus, and emits only if the blended score clears
// the session cutoff (spec §4.7/§4.8's "below_cutoff" suppression rule
// is the first gate the caller applies against this Candidate.Score).
func Mix(in Input, cutoff float64, horizonMinutes int) Candidate {
	w, ok := WeightTable[in.Regime]
	if !ok {
		w = WeightTable[regime.Sideways]
	}

	score := w.Tech*in.TechScore + w.Sentiment*in.Sentiment
	if in.IsEdgarEvent {
		if score >= 0 {
			score += edgarBonus
		} else {
			score -= edgarBonus
		}
	}
	score = clamp(score, -1, 1)

	return Candidate{
		Score:   score,
		Horizon: horizonMinutes,
		Emit:    math.Abs(score) >= cutoff,
	}
}

// CutoffFor resolves the session-specific cutoff from config, the single
// source of truth shared with the mixer threshold (spec Open Question 1).
func CutoffFor(cfg config.Config, isRTH bool) float64 {
	return cfg.CutoffFor(isRTH)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
