// Package ingest implements the Quote Ingestor & Tier Scheduler of spec
// §4.4: tickers partitioned into cadence tiers, gated by the rate limiter,
// feeding the Bar Store. Grounded on the teacher's live.go polling loop
// (per-symbol ticker-driven fetch-and-update cycle) generalized from a
// single hardcoded product/cadence to the spec's multi-tier
// (A/B/Bench) scheduling, and on poorman-SynapseStrike's market/data.go
// per-symbol "last update" bookkeeping for the not-yet-due skip logic.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/example/sigpipe/internal/bars"
	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/log"
	"github.com/example/sigpipe/internal/metrics"
	"github.com/example/sigpipe/internal/quote"
	"github.com/example/sigpipe/internal/ratelimit"
	"github.com/rs/zerolog"
)

// Tier identifies which ratelimit.Tier and cadence a ticker belongs to.
type Tier struct {
	Label    ratelimit.Tier
	Tickers  []string
	Cadence  time.Duration
}

// Scheduler owns the per-ticker "last successful ingest" timestamps and
// drives one Tick per wake-up across every configured tier.
type Scheduler struct {
	clock    clock.Clock
	limiter  *ratelimit.Limiter
	store    *bars.Store
	provider quote.Provider
	logger   zerolog.Logger

	tiers []Tier

	mu           sync.Mutex
	lastIngested map[string]time.Time // ticker -> last successful ingest
}

// New constructs a Scheduler from the tier config (spec §4.4's
// A/B/Bench partition).
func New(cfg config.TiersConfig, clk clock.Clock, limiter *ratelimit.Limiter, store *bars.Store, provider quote.Provider) *Scheduler {
	return &Scheduler{
		clock:    clk,
		limiter:  limiter,
		store:    store,
		provider: provider,
		logger:   log.With("ingest"),
		tiers: []Tier{
			{Label: ratelimit.TierA, Tickers: cfg.A.Tickers, Cadence: time.Duration(cfg.A.CadenceSeconds) * time.Second},
			{Label: ratelimit.TierB, Tickers: cfg.B.Tickers, Cadence: time.Duration(cfg.B.CadenceSeconds) * time.Second},
			{Label: ratelimit.TierReserve, Tickers: cfg.Bench.Tickers, Cadence: time.Duration(cfg.Bench.CadenceSeconds) * time.Second},
		},
		lastIngested: make(map[string]time.Time),
	}
}

// Tick runs one scheduler wake-up: for every ticker in every tier, if
// enough time has elapsed since its last successful ingest, it attempts
// try_consume(tier, 1) and on success fetches and stores the latest bars.
// Failures are logged and do not advance the ticker's ingest timestamp,
// so the next tick retries (spec §4.4).
func (s *Scheduler) Tick(ctx context.Context, timeout time.Duration) {
	now := s.clock.Now()
	for _, tier := range s.tiers {
		for _, ticker := range tier.Tickers {
			if !s.isDue(ticker, tier.Cadence, now) {
				continue
			}
			if !s.limiter.TryConsume(tier.Label, 1) {
				metrics.IngestAttempts.WithLabelValues(string(tier.Label), "rate_limited").Inc()
				continue
			}
			s.ingestOne(ctx, ticker, tier.Label, timeout)
		}
	}
}

func (s *Scheduler) isDue(ticker string, cadence time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastIngested[ticker]
	if !ok {
		return true
	}
	return now.Sub(last) >= cadence
}

func (s *Scheduler) ingestOne(ctx context.Context, ticker string, tier ratelimit.Tier, timeout time.Duration) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bs, err := s.provider.GetBars(cctx, ticker, s.lastBarTime(ticker))
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("quote fetch failed")
		metrics.IngestAttempts.WithLabelValues(string(tier), "error").Inc()
		return
	}
	if len(bs) == 0 {
		metrics.IngestAttempts.WithLabelValues(string(tier), "empty").Inc()
		return
	}

	for _, b := range bs {
		s.store.AppendBar(b)
	}

	s.mu.Lock()
	s.lastIngested[ticker] = s.clock.Now()
	s.mu.Unlock()
	metrics.IngestAttempts.WithLabelValues(string(tier), "ok").Inc()
}

func (s *Scheduler) lastBarTime(ticker string) time.Time {
	w := s.store.Window(ticker)
	if len(w) == 0 {
		return time.Time{}
	}
	return w[len(w)-1].TS
}
