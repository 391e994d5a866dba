package regime

import (
	"testing"
	"time"

	"github.com/example/sigpipe/internal/bars"
	"github.com/stretchr/testify/require"
)

func mkWindow(closes []float64, volume float64) []bars.Bar {
	w := make([]bars.Bar, len(closes))
	base := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		w[i] = bars.Bar{
			Ticker: "AAPL",
			TS:     base.Add(time.Duration(i) * 30 * time.Second),
			Open:   open,
			High:   c + 0.05,
			Low:    c - 0.05,
			Close:  c,
			Volume: volume,
		}
	}
	return w
}

func TestClassifyTrendWhenEMAGapLarge(t *testing.T) {
	w := mkWindow(linspace(100, 120, 30), 1000)
	snap, ok := bars.Compute(w)
	require.True(t, ok)
	got := Classify(w, snap, DefaultThresholds())
	require.Equal(t, Trend, got.Label)
	require.Greater(t, got.Confidence, 0.0)
}

func TestClassifySidewaysWhenFlat(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	w := mkWindow(closes, 1000)
	snap, ok := bars.Compute(w)
	require.True(t, ok)
	got := Classify(w, snap, DefaultThresholds())
	require.Equal(t, Sideways, got.Label)
}

func TestClassifyVolSpikeOnVolumeAndRangeBurst(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	w := mkWindow(closes, 1000)
	// burst the final bar's volume and range.
	w[len(w)-1].Volume = 50000
	w[len(w)-1].High = 104
	w[len(w)-1].Low = 96
	snap, ok := bars.Compute(w)
	require.True(t, ok)
	got := Classify(w, snap, DefaultThresholds())
	require.Equal(t, VolSpike, got.Label)
}

func TestTechScoreWithinBounds(t *testing.T) {
	w := mkWindow(linspace(100, 80, 30), 1000)
	snap, ok := bars.Compute(w)
	require.True(t, ok)
	score := TechScore(w, snap, DefaultTechWeights())
	require.GreaterOrEqual(t, score, -1.0)
	require.LessOrEqual(t, score, 1.0)
}

func TestTechScoreZeroOnEmptyWindow(t *testing.T) {
	require.Equal(t, 0.0, TechScore(nil, bars.Snapshot{}, DefaultTechWeights()))
}

func linspace(start, end float64, n int) []float64 {
	out := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}
