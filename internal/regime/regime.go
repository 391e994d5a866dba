// Package regime implements the Regime Detector & Tech Scorer of spec
// §4.5: rule-based regime classification from indicators, and a weighted
// technical score in [-1,1]. Grounded on the teacher's strategy.go regime-
// cross detection (EMA4/EMA8 three-point cross gating) generalized from a
// single-product 2-EMA cross to the full trend/vol_spike/mean_revert/
// sideways classification spec.md names, and on model.go's buildDataset
// feature normalization (ret1/ret5/rsi/zscore) for the tech-score inputs.
package regime

import (
	"math"

	"github.com/example/sigpipe/internal/bars"
)

// Label is one of the four regime classifications.
type Label string

const (
	Trend      Label = "trend"
	VolSpike   Label = "vol_spike"
	MeanRevert Label = "mean_revert"
	Sideways   Label = "sideways"
)

// Classification is the per-ticker Regime entity of spec §3.
type Classification struct {
	Label      Label
	Confidence float64
}

// Thresholds are the rule-based classifier's tunables. Defaults are the
// teacher's own scale (EMA-cross-by-threshold) generalized with the
// pack's volume-z / RSI-extreme conventions.
type Thresholds struct {
	TrendEMAGapPct   float64 // fast vs slow EMA gap, percent of slow
	VolSpikeZ        float64 // volume-z threshold
	VolSpikeRangeRatio float64 // (high-low)/close threshold
	RSIOverbought    float64
	RSIOversold      float64
}

// DefaultThresholds mirrors the teacher's implicit defaults (small
// percentage EMA gaps, RSI 70/30 extremes).
func DefaultThresholds() Thresholds {
	return Thresholds{
		TrendEMAGapPct:     0.15,
		VolSpikeZ:          2.0,
		VolSpikeRangeRatio: 0.02,
		RSIOverbought:      70,
		RSIOversold:        30,
	}
}

// Classify applies the rule-based classifier of spec §4.5 to the latest
// bar window and its Snapshot.
func Classify(w []bars.Bar, snap bars.Snapshot, th Thresholds) Classification {
	if len(w) == 0 {
		return Classification{Label: Sideways, Confidence: 0}
	}
	last := w[len(w)-1]

	emaGapPct := 0.0
	if snap.EMASlow != 0 {
		emaGapPct = (snap.EMAFast - snap.EMASlow) / math.Abs(snap.EMASlow) * 100
	}
	rangeRatio := 0.0
	if last.Close != 0 {
		rangeRatio = (last.High - last.Low) / last.Close
	}

	switch {
	case math.Abs(emaGapPct) >= th.TrendEMAGapPct:
		conf := math.Min(1, math.Abs(emaGapPct)/(th.TrendEMAGapPct*2))
		return Classification{Label: Trend, Confidence: conf}
	case snap.VolumeZ >= th.VolSpikeZ && rangeRatio >= th.VolSpikeRangeRatio:
		conf := math.Min(1, snap.VolumeZ/(th.VolSpikeZ*2))
		return Classification{Label: VolSpike, Confidence: conf}
	case (snap.RSI >= th.RSIOverbought || snap.RSI <= th.RSIOversold) && isReversionBar(w):
		conf := math.Min(1, math.Abs(snap.RSI-50)/50)
		return Classification{Label: MeanRevert, Confidence: conf}
	default:
		return Classification{Label: Sideways, Confidence: 0.5}
	}
}

// isReversionBar reports whether the most recent bar closed back toward
// the prior bar's open after an RSI extreme, i.e. a reversal candle.
func isReversionBar(w []bars.Bar) bool {
	if len(w) < 2 {
		return false
	}
	last := w[len(w)-1]
	prev := w[len(w)-2]
	movedUp := last.Close > prev.Close
	wasDownTrend := prev.Close < prev.Open
	movedDown := last.Close < prev.Close
	wasUpTrend := prev.Close > prev.Open
	return (movedUp && wasDownTrend) || (movedDown && wasUpTrend)
}

// TechWeights are the per-component weights of the tech score, generalized
// from the teacher's single blended pUp into five normalized components.
type TechWeights struct {
	Momentum, Volatility, Volume, Bollinger, RSI float64
}

// DefaultTechWeights sum to 1.0.
func DefaultTechWeights() TechWeights {
	return TechWeights{Momentum: 0.35, Volatility: 0.15, Volume: 0.15, Bollinger: 0.2, RSI: 0.15}
}

// TechScore computes the normalized, weighted technical score in [-1,1]
// (spec §4.5).
func TechScore(w []bars.Bar, snap bars.Snapshot, weights TechWeights) float64 {
	if len(w) < 2 {
		return 0
	}
	last := w[len(w)-1]
	prev := w[len(w)-2]

	momentum := 0.0
	if prev.Close != 0 {
		momentum = clamp((last.Close-prev.Close)/prev.Close*20, -1, 1)
	}
	volatility := clamp(snap.ATR/last.Close*10, -1, 1)
	if snap.VWAPDev < 0 {
		volatility = -volatility
	}
	volume := clamp(snap.VolumeZ/3, -1, 1)
	bollinger := clamp(snap.BollingerPos, -1, 1)
	rsiComponent := clamp((snap.RSI-50)/50, -1, 1)

	score := weights.Momentum*momentum +
		weights.Volatility*volatility +
		weights.Volume*volume +
		weights.Bollinger*bollinger +
		weights.RSI*rsiComponent

	return clamp(score, -1, 1)
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
