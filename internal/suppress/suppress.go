// Package suppress implements the Suppression Chain of spec §4.8: a fixed
// ordered series of gates over a just-mixed candidate, the first rejecting
// gate wins and is the sole recorded reason. Grounded on the teacher's
// trader.go gating sequence (checkDailyCap / checkCooldown / directional
// lock checks run in a fixed if/else chain before a trade is placed),
// generalized from that ad hoc sequence into a named, independently
// testable Chain type with one method per gate.
package suppress

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/metrics"
)

// Reason is the first-hit suppression reason recorded for a rejected
// candidate (spec §3's Suppression Record). The empty Reason means the
// candidate cleared every gate.
type Reason string

const (
	Emitted         Reason = ""
	BelowCutoff     Reason = "below_cutoff"
	MixerCooldown   Reason = "mixer_cooldown"
	DirectionLock   Reason = "direction_lock"
	DupEvent        Reason = "dup_event"
	SessionDailyCap Reason = "session_daily_cap"
	LLMGate         Reason = "llm_gate"
	RiskFeasibility Reason = "risk_feasibility"
)

// Side is the candidate's directional sign.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Candidate is the minimal view of a Candidate Signal (spec §3) the chain
// needs to evaluate its gates.
type Candidate struct {
	Ticker string
	Side   Side
	Score  float64
	Entry  float64
	Stop   float64
	BarTS  time.Time
	DayKey string
}

// RiskChecker is the narrow feasibility-check surface the chain needs from
// the Risk Manager, accepted as an interface so this package never imports
// internal/risk directly (spec §9: "construct all stateful components from
// an explicit configuration object", generalized here to "depend on
// interfaces, not concrete packages").
type RiskChecker interface {
	CheckFeasibility(ticker string, side Side, score, entry, stop float64) (ok bool, reason string)
}

type directionLock struct {
	Side      Side
	ExpiresAt time.Time
}

// Chain evaluates the fixed-order suppression gates and, on full pass,
// records the emission's side-effecting state (cooldown, direction lock,
// dedup, daily caps).
type Chain struct {
	cfg   config.AntiSpamConfig
	clock clock.Clock

	mu            sync.Mutex
	lastEmit      map[string]time.Time    // key: ticker|side
	dirLocks      map[string]directionLock // key: ticker
	dupSeen       map[string]bool          // key: ticker|side|roundedScore|barTS
	dailyDayKey   string
	perTickerDaily map[string]int
	globalDaily   int
}

// New constructs a Chain from the anti-spam config.
func New(cfg config.AntiSpamConfig, clk clock.Clock) *Chain {
	return &Chain{
		cfg:            cfg,
		clock:          clk,
		lastEmit:       make(map[string]time.Time),
		dirLocks:       make(map[string]directionLock),
		dupSeen:        make(map[string]bool),
		perTickerDaily: make(map[string]int),
	}
}

func (c *Chain) resetIfNewDayLocked(dayKey string) {
	if c.dailyDayKey != dayKey {
		c.dailyDayKey = dayKey
		c.globalDaily = 0
		c.perTickerDaily = make(map[string]int)
	}
}

func dupKey(cand Candidate) string {
	rounded := math.Round(cand.Score*100) / 100
	return fmt.Sprintf("%s|%s|%.2f|%d", cand.Ticker, cand.Side, rounded, cand.BarTS.Unix())
}

// Evaluate runs every gate in spec §4.8's fixed order and returns the
// first-hit Reason, or Emitted if the candidate clears all of them. llmGate
// (nil-safe) and risk are evaluated last; Evaluate does not mutate state —
// callers must call RecordEmission once the candidate is actually emitted,
// so that daily-cap increments and lock sets happen exactly once per
// genuinely emitted signal.
func (c *Chain) Evaluate(cand Candidate, cutoff float64, llmDenied bool, risk RiskChecker) Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfNewDayLocked(cand.DayKey)

	if math.Abs(cand.Score) < cutoff {
		return record(BelowCutoff)
	}

	cooldownKey := cand.Ticker + "|" + string(cand.Side)
	if last, ok := c.lastEmit[cooldownKey]; ok {
		if c.clock.Now().Sub(last) < time.Duration(c.cfg.CooldownSeconds)*time.Second {
			return record(MixerCooldown)
		}
	}

	if lock, ok := c.dirLocks[cand.Ticker]; ok && lock.Side != cand.Side {
		if c.clock.Now().Before(lock.ExpiresAt) {
			return record(DirectionLock)
		}
	}

	if c.dupSeen[dupKey(cand)] {
		return record(DupEvent)
	}

	if c.cfg.DailyCapGlobal > 0 && c.globalDaily >= c.cfg.DailyCapGlobal {
		return record(SessionDailyCap)
	}
	if c.cfg.DailyCapPerTicker > 0 && c.perTickerDaily[cand.Ticker] >= c.cfg.DailyCapPerTicker {
		return record(SessionDailyCap)
	}

	if llmDenied {
		return record(LLMGate)
	}

	if risk != nil {
		if ok, _ := risk.CheckFeasibility(cand.Ticker, cand.Side, cand.Score, cand.Entry, cand.Stop); !ok {
			return record(RiskFeasibility)
		}
	}

	metrics.Emissions.WithLabelValues(cand.Ticker, string(cand.Side)).Inc()
	return Emitted
}

func record(r Reason) Reason {
	metrics.Suppressions.WithLabelValues(string(r)).Inc()
	return r
}

// RecordEmission sets the cooldown, direction lock, dedup, and daily-cap
// side effects for a candidate that was actually emitted — deferred until
// here so the daily counter only tracks actionable signals, exactly as
// spec §4.8 requires ("incremented only after the candidate passes cutoff
// and risk").
func (c *Chain) RecordEmission(cand Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfNewDayLocked(cand.DayKey)

	now := c.clock.Now()
	c.lastEmit[cand.Ticker+"|"+string(cand.Side)] = now
	c.dirLocks[cand.Ticker] = directionLock{
		Side:      cand.Side,
		ExpiresAt: now.Add(time.Duration(c.cfg.DirectionLockSeconds) * time.Second),
	}
	c.dupSeen[dupKey(cand)] = true
	c.globalDaily++
	c.perTickerDaily[cand.Ticker]++
}

// DailyCounts exposes the current day's counters for audit/metrics.
func (c *Chain) DailyCounts() (global int, perTicker map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.perTickerDaily))
	for k, v := range c.perTickerDaily {
		out[k] = v
	}
	return c.globalDaily, out
}

// Snapshot is the JSON-serializable view of a Chain's mutable state,
// persisted by internal/state across restarts (direction locks, cooldowns,
// dedup window, and today's daily counters).
type Snapshot struct {
	LastEmit       map[string]time.Time
	DirLocks       map[string]directionLock
	DupSeen        map[string]bool
	DailyDayKey    string
	PerTickerDaily map[string]int
	GlobalDaily    int
}

// Snapshot returns a copy of the chain's current mutable state.
func (c *Chain) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		LastEmit:       make(map[string]time.Time, len(c.lastEmit)),
		DirLocks:       make(map[string]directionLock, len(c.dirLocks)),
		DupSeen:        make(map[string]bool, len(c.dupSeen)),
		DailyDayKey:    c.dailyDayKey,
		PerTickerDaily: make(map[string]int, len(c.perTickerDaily)),
		GlobalDaily:    c.globalDaily,
	}
	for k, v := range c.lastEmit {
		s.LastEmit[k] = v
	}
	for k, v := range c.dirLocks {
		s.DirLocks[k] = v
	}
	for k, v := range c.dupSeen {
		s.DupSeen[k] = v
	}
	for k, v := range c.perTickerDaily {
		s.PerTickerDaily[k] = v
	}
	return s
}

// Restore replaces the chain's mutable state wholesale, used once at
// startup to rehydrate from a persisted snapshot.
func (c *Chain) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEmit = s.LastEmit
	c.dirLocks = s.DirLocks
	c.dupSeen = s.DupSeen
	c.dailyDayKey = s.DailyDayKey
	c.perTickerDaily = s.PerTickerDaily
	c.globalDaily = s.GlobalDaily
	if c.lastEmit == nil {
		c.lastEmit = make(map[string]time.Time)
	}
	if c.dirLocks == nil {
		c.dirLocks = make(map[string]directionLock)
	}
	if c.dupSeen == nil {
		c.dupSeen = make(map[string]bool)
	}
	if c.perTickerDaily == nil {
		c.perTickerDaily = make(map[string]int)
	}
}
