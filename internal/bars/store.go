// Package bars implements the rolling OHLCV Bar Store of spec §3/§4.3:
// 30-second-aligned bars per ticker, single-writer-many-readers ownership,
// and retention-window eviction. Grounded on the teacher's Candle type
// (strategy.go) generalized from a single product to a per-ticker map, and
// on poorman-SynapseStrike's market/data.go stale-data and bar-assembly
// idioms (isStaleData, calculateTimeframeSeries) for the update-in-place /
// open-new-bar logic.
package bars

import (
	"sync"
	"time"
)

const barWidth = 30 * time.Second

// Bar is one 30-second OHLCV bucket for a ticker.
type Bar struct {
	Ticker   string
	TS       time.Time // aligned to a 30s boundary
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	SpreadEst float64
}

// alignTS floors ts to the nearest 30-second boundary using epoch floor
// division, exactly as spec §4.3 specifies.
func alignTS(ts time.Time) time.Time {
	epoch := ts.Unix()
	aligned := (epoch / int64(barWidth/time.Second)) * int64(barWidth/time.Second)
	return time.Unix(aligned, 0).UTC()
}

// Store owns all Bars; every other component only reads a borrowed view
// (spec §3 Ownership). Single-writer-per-ticker (the ingestor), many
// readers — enforced here by a per-ticker mutex rather than one global
// lock, so concurrent tickers never contend.
type Store struct {
	retention int

	mu      sync.RWMutex
	byTicker map[string]*tickerSeries
}

type tickerSeries struct {
	mu   sync.Mutex
	bars []Bar // oldest first
}

// New constructs a Store retaining at least `retention` bars per ticker
// (spec: "at least 120 bars/ticker").
func New(retention int) *Store {
	if retention < 1 {
		retention = 120
	}
	return &Store{retention: retention, byTicker: make(map[string]*tickerSeries)}
}

func (s *Store) seriesFor(ticker string) *tickerSeries {
	s.mu.RLock()
	ts, ok := s.byTicker[ticker]
	s.mu.RUnlock()
	if ok {
		return ts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok = s.byTicker[ticker]; ok {
		return ts
	}
	ts = &tickerSeries{}
	s.byTicker[ticker] = ts
	return ts
}

// Ingest appends a tick (price/volume observation) to ticker's series,
// updating the current 30s bar in place or opening a new one at a new
// boundary. A tick whose 30s bucket is earlier than the last bar's ts is
// discarded, and a tick in the last bar's bucket updates that bar, per
// the ordering guarantee in spec §5 ("Bars arrive in non-decreasing ts;
// late bars are discarded").
func (s *Store) Ingest(ticker string, ts time.Time, price, volume, spreadEst float64) {
	bucket := alignTS(ts)
	series := s.seriesFor(ticker)

	series.mu.Lock()
	defer series.mu.Unlock()

	n := len(series.bars)
	if n > 0 {
		last := &series.bars[n-1]
		if bucket.Before(last.TS) {
			return // late bar, discard
		}
		if bucket.Equal(last.TS) {
			last.High = max(last.High, price)
			last.Low = min(last.Low, price)
			last.Close = price
			last.Volume += volume
			last.SpreadEst = spreadEst
			return
		}
	}

	series.bars = append(series.bars, Bar{
		Ticker: ticker, TS: bucket,
		Open: price, High: price, Low: price, Close: price,
		Volume: volume, SpreadEst: spreadEst,
	})
	if len(series.bars) > s.retention {
		series.bars = series.bars[len(series.bars)-s.retention:]
	}
}

// AppendBar ingests an already-assembled Bar (used by the Quote Ingestor
// when the provider returns pre-aggregated bars rather than raw ticks).
func (s *Store) AppendBar(b Bar) {
	b.TS = alignTS(b.TS)
	series := s.seriesFor(b.Ticker)

	series.mu.Lock()
	defer series.mu.Unlock()

	n := len(series.bars)
	if n > 0 && !b.TS.After(series.bars[n-1].TS) {
		return // non-increasing ts, discard
	}
	series.bars = append(series.bars, b)
	if len(series.bars) > s.retention {
		series.bars = series.bars[len(series.bars)-s.retention:]
	}
}

// Window returns a read-only copy of ticker's current bar window, oldest
// first. Every consumer other than the ingestor only ever sees this
// borrowed copy, never the live slice.
func (s *Store) Window(ticker string) []Bar {
	series := s.seriesFor(ticker)
	series.mu.Lock()
	defer series.mu.Unlock()
	out := make([]Bar, len(series.bars))
	copy(out, series.bars)
	return out
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
