// Package ratelimit implements the tiered token-bucket rate limiter of
// spec §4.2. A hand-rolled primitive is used (rather than a library like
// golang.org/x/time/rate) because the spec's tests assert directly on the
// lazy-refill math and the once-per-(tier,minute) Reserve fallback; see
// DESIGN.md for the full justification. The style — a small mutex-guarded
// struct with an explicit atomic operation — is grounded on the teacher's
// sync.RWMutex-guarded Trader fields (trader.go) generalized to a
// standalone, injectable component per spec §9's "construct all stateful
// components from an explicit configuration object" rule.
package ratelimit

import (
	"sync"
	"time"

	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/metrics"
)

// Tier identifies one of the three token-bucket tiers.
type Tier string

const (
	TierA       Tier = "A"
	TierB       Tier = "B"
	TierReserve Tier = "Reserve"
)

type bucketState struct {
	capacity     int
	tokens       int
	lastRefill   time.Time
	refillPerMin int // tokens credited per RefillPeriod
}

// Limiter is the tiered token-bucket rate limiter. Capacities for A, B and
// Reserve must sum to the provider's total allowance (spec invariant).
type Limiter struct {
	mu           sync.Mutex
	clock        clock.Clock
	refillPeriod time.Duration
	buckets      map[Tier]*bucketState

	// reserveFallbackUsed tracks the once-per-(tier,minute) Reserve
	// fallback key "<tier>|<minute-bucket>".
	reserveFallbackUsed map[string]bool
}

// New constructs a Limiter. tokensA/B/Reserve are per-refill-period
// capacities; refillPeriod is the cadence at which each bucket is
// refilled up to its own capacity.
func New(clk clock.Clock, tokensA, tokensB, tokensReserve int, refillPeriod time.Duration) *Limiter {
	now := clk.Now()
	return &Limiter{
		clock:        clk,
		refillPeriod: refillPeriod,
		buckets: map[Tier]*bucketState{
			TierA:       {capacity: tokensA, tokens: tokensA, lastRefill: now, refillPerMin: tokensA},
			TierB:       {capacity: tokensB, tokens: tokensB, lastRefill: now, refillPerMin: tokensB},
			TierReserve: {capacity: tokensReserve, tokens: tokensReserve, lastRefill: now, refillPerMin: tokensReserve},
		},
		reserveFallbackUsed: make(map[string]bool),
	}
}

func (l *Limiter) refillLocked(b *bucketState, now time.Time) {
	if l.refillPeriod <= 0 {
		return
	}
	elapsed := now.Sub(b.lastRefill)
	periods := int(elapsed / l.refillPeriod)
	if periods <= 0 {
		return
	}
	credited := periods * b.refillPerMin
	b.tokens = min(b.capacity, b.tokens+credited)
	b.lastRefill = b.lastRefill.Add(time.Duration(periods) * l.refillPeriod)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func minuteBucket(now time.Time) string {
	return now.Truncate(time.Minute).Format(time.RFC3339)
}

// TryConsume attempts to atomically take n tokens from tier. It never
// blocks: a caller that cannot consume must skip the tick (spec §4.2).
// If tier A is empty within the first 10 seconds of a minute boundary, one
// fallback consume from Reserve is permitted per (tier, minute).
func (l *Limiter) TryConsume(tier Tier, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, ok := l.buckets[tier]
	if !ok {
		return false
	}
	l.refillLocked(b, now)

	if b.tokens >= n {
		b.tokens -= n
		metrics.BucketTokens.WithLabelValues(string(tier)).Set(float64(b.tokens))
		return true
	}

	// Reserve fallback: only for non-Reserve tiers, only in the first 10s
	// of a minute boundary, only once per (tier, minute).
	if tier != TierReserve && now.Second() < 10 {
		key := string(tier) + "|" + minuteBucket(now)
		if !l.reserveFallbackUsed[key] {
			reserve := l.buckets[TierReserve]
			l.refillLocked(reserve, now)
			if reserve.tokens >= n {
				reserve.tokens -= n
				l.reserveFallbackUsed[key] = true
				metrics.BucketTokens.WithLabelValues(string(TierReserve)).Set(float64(reserve.tokens))
				metrics.ReserveFallbacks.WithLabelValues(string(tier)).Inc()
				return true
			}
		}
	}
	return false
}

// Tokens returns the current token count for a tier, refilling first.
// Exposed for tests and the /metrics snapshot loop.
func (l *Limiter) Tokens(tier Tier) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[tier]
	if !ok {
		return 0
	}
	l.refillLocked(b, l.clock.Now())
	return b.tokens
}

// Snapshot is the persisted form of bucket state (spec: "persisted across
// restarts"), used by internal/state.
type Snapshot struct {
	Tier       Tier
	Tokens     int
	LastRefill time.Time
}

// Save returns a snapshot of every bucket's state for persistence.
func (l *Limiter) Save() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Snapshot, 0, len(l.buckets))
	for tier, b := range l.buckets {
		out = append(out, Snapshot{Tier: tier, Tokens: b.tokens, LastRefill: b.lastRefill})
	}
	return out
}

// Restore applies a previously saved snapshot, used on process restart.
func (l *Limiter) Restore(snaps []Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range snaps {
		if b, ok := l.buckets[s.Tier]; ok {
			b.tokens = s.Tokens
			b.lastRefill = s.LastRefill
		}
	}
}
