// Package llmgate implements the LLM Insight Gate of spec §4.6: an
// event-type allowlist + strong-signal threshold + daily call cap + a
// per-(event_type,ticker) TTL cache. Grounded on the nested SynapseStrike
// module's decision engine gating (GetFullDecisionWithStrategy's
// Local-Function-Provider bypass and batching-under-budget idiom) and on
// the teacher's daily-counter reset pattern (trader.go's updateDaily),
// generalized from "daily trade count" to "daily LLM call count".
package llmgate

import (
	"sync"
	"time"

	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/metrics"
)

// Reason is why a call was denied, for the suppression audit trail.
type Reason string

const (
	Allowed        Reason = ""
	ReasonDailyCap Reason = "llm_daily_cap"
	ReasonCacheHit Reason = "llm_cache_hit"
	ReasonNotEvent Reason = "llm_not_eligible_event"
)

type cacheEntry struct {
	insertedAt time.Time
}

// Gate enforces the LLM call budget and cache.
type Gate struct {
	cfg   config.LLMGateConfig
	clock clock.Clock

	mu          sync.Mutex
	dayKey      string
	callsToday  int
	cache       map[string]cacheEntry // key: eventType|ticker
	eligible    map[string]bool
}

// New constructs a Gate from the LLM gate config.
func New(cfg config.LLMGateConfig, clk clock.Clock) *Gate {
	elig := make(map[string]bool, len(cfg.RequiredEvents))
	for _, e := range cfg.RequiredEvents {
		elig[e] = true
	}
	return &Gate{cfg: cfg, clock: clk, cache: make(map[string]cacheEntry), eligible: elig}
}

func cacheKey(eventType, ticker string) string { return eventType + "|" + ticker }

// resetIfNewDayLocked resets the daily call counter when dayKey changes, the
// llmgate analogue of the Daily Counters entity's session-local-midnight
// reset.
func (g *Gate) resetIfNewDayLocked(dayKey string) {
	if g.dayKey != dayKey {
		g.dayKey = dayKey
		g.callsToday = 0
	}
}

// ShouldCall decides whether to place an LLM call for ticker/eventType
// given signalScore, following the exact allow rule of spec §4.6.
func (g *Gate) ShouldCall(dayKey, ticker, eventType string, signalScore float64) (bool, Reason) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDayLocked(dayKey)

	eligibleEvent := g.eligible[eventType]
	strongSignal := absF(signalScore) >= g.cfg.MinSignalScore
	if !eligibleEvent && !strongSignal {
		metrics.LLMCallsDenied.WithLabelValues(string(ReasonNotEvent)).Inc()
		return false, ReasonNotEvent
	}

	if g.callsToday >= g.cfg.DailyCallLimit {
		metrics.LLMCallsDenied.WithLabelValues(string(ReasonDailyCap)).Inc()
		return false, ReasonDailyCap
	}

	key := cacheKey(eventType, ticker)
	if entry, ok := g.cache[key]; ok {
		if g.clock.Now().Sub(entry.insertedAt) < g.cfg.CacheTTL {
			metrics.LLMCallsDenied.WithLabelValues(string(ReasonCacheHit)).Inc()
			return false, ReasonCacheHit
		}
	}

	g.callsToday++
	g.cache[key] = cacheEntry{insertedAt: g.clock.Now()}
	metrics.LLMCallsAllowed.Inc()
	return true, Allowed
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// CallsToday exposes the current day's call count, for tests and audit.
func (g *Gate) CallsToday() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callsToday
}
