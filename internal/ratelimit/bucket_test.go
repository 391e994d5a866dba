package ratelimit

import (
	"testing"
	"time"

	"github.com/example/sigpipe/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestTryConsumeWithinCapacity(t *testing.T) {
	// second()==30 is outside the Reserve-fallback window.
	clk := &movableClock{at: time.Date(2026, 1, 1, 9, 30, 30, 0, time.UTC)}
	l := New(clk, 2, 1, 1, time.Minute)
	require.True(t, l.TryConsume(TierA, 1))
	require.True(t, l.TryConsume(TierA, 1))
	require.False(t, l.TryConsume(TierA, 1), "capacity exhausted, no refill elapsed")
}

func TestLazyRefillCreditsTokensAfterElapsedPeriods(t *testing.T) {
	// second()==30 is outside the Reserve-fallback window.
	clk := &movableClock{at: time.Date(2026, 1, 1, 9, 30, 30, 0, time.UTC)}
	l := New(clk, 1, 1, 1, time.Minute)
	require.True(t, l.TryConsume(TierA, 1))
	require.False(t, l.TryConsume(TierA, 1))
	clk.advance(61 * time.Second)
	require.True(t, l.TryConsume(TierA, 1), "one refill period elapsed, should have 1 token")
}

func TestReserveFallbackOncePerTierPerMinute(t *testing.T) {
	// second()==5 is within the first-10-seconds window.
	clk := &movableClock{at: time.Date(2026, 1, 1, 9, 30, 5, 0, time.UTC)}
	l := New(clk, 0, 0, 1, time.Minute)
	require.True(t, l.TryConsume(TierA, 1), "first consume falls back to Reserve")
	require.False(t, l.TryConsume(TierA, 1), "second fallback in same (tier,minute) is refused")
}

func TestReserveFallbackOutsideFirst10SecondsRefused(t *testing.T) {
	clk := &movableClock{at: time.Date(2026, 1, 1, 9, 30, 45, 0, time.UTC)}
	l := New(clk, 0, 0, 1, time.Minute)
	require.False(t, l.TryConsume(TierA, 1))
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	clk := &movableClock{at: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)}
	l := New(clk, 5, 5, 5, time.Minute)
	l.TryConsume(TierA, 3)
	snap := l.Save()

	l2 := New(clk, 5, 5, 5, time.Minute)
	l2.Restore(snap)
	require.Equal(t, l.Tokens(TierA), l2.Tokens(TierA))
}

type movableClock struct{ at time.Time }

func (m *movableClock) Now() time.Time    { return m.at }
func (m *movableClock) advance(d time.Duration) { m.at = m.at.Add(d) }

var _ clock.Clock = (*movableClock)(nil)
