// Indicator calculations: pure functions of a Bar window. Before the window
// reaches an indicator's minimum period, SMA/EMA/ATR/MACDHist/
// BollingerPosition/VWAP yield NaN, while RSI, ZScore and VolumeZ yield 0;
// Compute refuses such windows outright. SMA/RSI/ZScore are generalized directly from the
// teacher's indicators.go (same Wilder-smoothing RSI, same rolling
// variance ZScore); EMA/MACD/ATR/BollingerPosition/VWAP/VolumeZ are
// grounded on poorman-SynapseStrike's market/data.go
// (calculateEMA/calculateMACD/calculateATR/calculateAnchoredVWAP/volume
// profile), adapted from its per-timeframe []Kline shape to this
// package's []Bar shape.
package bars

import "math"

const minPeriodMultiplier = 1 // a window of exactly `period` bars is enough

// Snapshot is the per-ticker indicator snapshot of spec's Data Model.
// Compute builds one only from a window of at least its minimum length;
// for a shorter window it returns a zero Snapshot with ok=false.
type Snapshot struct {
	EMAFast        float64
	EMASlow        float64
	RSI            float64
	BollingerPos   float64 // position within the band, [-1,1], 0 = mid
	ATR            float64
	VWAPDev        float64 // (close - vwap) / vwap
	VolumeZ        float64
}

// Closes extracts the Close series from a bar window.
func Closes(w []Bar) []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.Close
	}
	return out
}

// SMA is the simple moving average of Close over the last n bars of w,
// aligned to w (NaN before the window fills), generalized from the
// teacher's indicators.go SMA.
func SMA(w []Bar, n int) []float64 {
	out := make([]float64, len(w))
	if n <= 0 || len(w) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range w {
		sum += w[i].Close
		if i >= n {
			sum -= w[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA is the n-period exponential moving average of Close, seeded with the
// SMA of the first n bars, grounded on poorman-SynapseStrike's
// calculateEMA (seed-with-SMA-then-recurse idiom).
func EMA(w []Bar, n int) []float64 {
	out := make([]float64, len(w))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(w) < n {
		return out
	}
	k := 2.0 / float64(n+1)
	var seed float64
	for i := 0; i < n; i++ {
		seed += w[i].Close
	}
	seed /= float64(n)
	out[n-1] = seed
	prev := seed
	for i := n; i < len(w); i++ {
		v := w[i].Close*k + prev*(1-k)
		out[i] = v
		prev = v
	}
	return out
}

// RSI is the n-period Relative Strength Index using Wilder's smoothing,
// identical in method to the teacher's indicators.go RSI.
func RSI(w []Bar, n int) []float64 {
	out := make([]float64, len(w))
	if n <= 0 || len(w) == 0 {
		return out
	}
	var gain, loss float64
	for i := 1; i < len(w); i++ {
		d := w[i].Close - w[i-1].Close
		if i <= n {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
			if i == n {
				avgGain := gain / float64(n)
				avgLoss := loss / float64(n)
				rs := 0.0
				if avgLoss != 0 {
					rs = avgGain / avgLoss
				}
				out[i] = 100.0 - (100.0 / (1.0 + rs))
			}
		} else {
			if d > 0 {
				gain = (gain*float64(n-1) + d) / float64(n)
				loss = (loss * float64(n-1)) / float64(n)
			} else {
				gain = (gain * float64(n-1)) / float64(n)
				loss = (loss*float64(n-1) - d) / float64(n)
			}
			rs := 0.0
			if loss != 0 {
				rs = gain / loss
			}
			out[i] = 100.0 - (100.0 / (1.0 + rs))
		}
	}
	return out
}

// ZScore is the rolling z-score of Close over window n, identical in
// method to the teacher's indicators.go ZScore.
func ZScore(w []Bar, n int) []float64 {
	out := make([]float64, len(w))
	if n <= 1 || len(w) == 0 {
		return out
	}
	var sum, sumSq float64
	for i := range w {
		x := w[i].Close
		sum += x
		sumSq += x * x
		if i >= n {
			y := w[i-n].Close
			sum -= y
			sumSq -= y * y
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := (sumSq / float64(n)) - (mean * mean)
			std := math.Sqrt(math.Max(variance, 1e-12))
			out[i] = (x - mean) / std
		} else {
			out[i] = 0
		}
	}
	return out
}

// ATR is the n-period Average True Range using Wilder smoothing, grounded
// on poorman-SynapseStrike's calculateATR.
func ATR(w []Bar, n int) float64 {
	if len(w) < n+1 {
		return math.NaN()
	}
	var trs []float64
	for i := 1; i < len(w); i++ {
		hl := w[i].High - w[i].Low
		hc := math.Abs(w[i].High - w[i-1].Close)
		lc := math.Abs(w[i].Low - w[i-1].Close)
		trs = append(trs, math.Max(hl, math.Max(hc, lc)))
	}
	if len(trs) < n {
		return math.NaN()
	}
	var sum float64
	for _, tr := range trs[:n] {
		sum += tr
	}
	atr := sum / float64(n)
	for _, tr := range trs[n:] {
		atr = (atr*float64(n-1) + tr) / float64(n)
	}
	return atr
}

// MACDHist returns the MACD histogram (MACD line minus its signal line)
// for the last bar of w, using the standard 12/26/9 periods, grounded on
// poorman-SynapseStrike's calculateMACD.
func MACDHist(w []Bar) float64 {
	fast := EMA(w, 12)
	slow := EMA(w, 26)
	n := len(w)
	if n == 0 || math.IsNaN(fast[n-1]) || math.IsNaN(slow[n-1]) {
		return math.NaN()
	}
	macdLine := make([]float64, n)
	for i := range w {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) {
			macdLine[i] = math.NaN()
			continue
		}
		macdLine[i] = fast[i] - slow[i]
	}
	// signal = 9-EMA of macdLine over the trailing window where defined.
	var validStart int
	for validStart = 0; validStart < n; validStart++ {
		if !math.IsNaN(macdLine[validStart]) {
			break
		}
	}
	if n-validStart < 9 {
		return math.NaN()
	}
	k := 2.0 / (9 + 1)
	var seed float64
	for i := validStart; i < validStart+9; i++ {
		seed += macdLine[i]
	}
	seed /= 9
	signal := seed
	for i := validStart + 9; i < n; i++ {
		signal = macdLine[i]*k + signal*(1-k)
	}
	return macdLine[n-1] - signal
}

// BollingerPosition returns where the last Close sits within an n-period,
// k-sigma Bollinger Band, normalized to roughly [-1,1] (0 = middle band).
func BollingerPosition(w []Bar, n int, k float64) float64 {
	if len(w) < n {
		return math.NaN()
	}
	window := w[len(w)-n:]
	var sum float64
	for _, b := range window {
		sum += b.Close
	}
	mean := sum / float64(n)
	var sq float64
	for _, b := range window {
		d := b.Close - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))
	if std == 0 {
		return 0
	}
	last := w[len(w)-1].Close
	return (last - mean) / (k * std)
}

// AnchoredVWAP computes the volume-weighted average price anchored at
// sessionStart (inclusive), grounded on poorman-SynapseStrike's
// calculateAnchoredVWAP (session-anchored from 9:30 AM).
func AnchoredVWAP(w []Bar, sessionStart int) float64 {
	if sessionStart < 0 || sessionStart >= len(w) {
		return math.NaN()
	}
	var pv, v float64
	for _, b := range w[sessionStart:] {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		v += b.Volume
	}
	if v == 0 {
		return math.NaN()
	}
	return pv / v
}

// VWAPDeviation is (close - vwap) / vwap for the last bar, anchored at the
// start of the provided window.
func VWAPDeviation(w []Bar) float64 {
	vwap := AnchoredVWAP(w, 0)
	if math.IsNaN(vwap) || vwap == 0 || len(w) == 0 {
		return math.NaN()
	}
	return (w[len(w)-1].Close - vwap) / vwap
}

// VolumeZ is the rolling z-score of Volume over window n, the volume
// analogue of ZScore, used by the vol_spike regime rule (spec §4.5).
func VolumeZ(w []Bar, n int) float64 {
	if len(w) < n {
		return 0
	}
	window := w[len(w)-n:]
	var sum, sumSq float64
	for _, b := range window {
		sum += b.Volume
		sumSq += b.Volume * b.Volume
	}
	mean := sum / float64(n)
	variance := (sumSq / float64(n)) - (mean * mean)
	std := math.Sqrt(math.Max(variance, 1e-12))
	return (window[len(window)-1].Volume - mean) / std
}

// Compute builds the full Snapshot for the current window, using the
// configured minimum periods. Returns ok=false if the window is shorter
// than the largest minimum period (spec: "undefined ... when the window
// has fewer than the minimum required bars per indicator").
func Compute(w []Bar) (Snapshot, bool) {
	const minBars = 26 // the MACD slow-EMA length; every period used below is shorter
	if len(w) < minBars {
		return Snapshot{}, false
	}
	emaFast := EMA(w, 8)
	emaSlow := EMA(w, 21)
	rsi := RSI(w, 14)
	return Snapshot{
		EMAFast:      emaFast[len(w)-1],
		EMASlow:      emaSlow[len(w)-1],
		RSI:          rsi[len(w)-1],
		BollingerPos: BollingerPosition(w, 20, 2.0),
		ATR:          ATR(w, 14),
		VWAPDev:      VWAPDeviation(w),
		VolumeZ:      VolumeZ(w, 20),
	}, true
}
