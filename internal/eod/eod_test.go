package eod

import (
	"context"
	"testing"
	"time"

	"github.com/example/sigpipe/internal/broker"
	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/stretchr/testify/require"
)

func testCfg() config.EODConfig {
	return config.EODConfig{
		FlattenMinutesBeforeClose: 5,
		OPGCleanupStart:           "09:25",
		OPGCleanupEnd:             "09:35",
	}
}

func newFlattener(t *testing.T, at time.Time, br broker.Broker) *Flattener {
	t.Helper()
	cal, err := clock.NewCalendar("America/New_York", nil)
	require.NoError(t, err)
	fc := &clock.FixedClock{At: at}
	return New(testCfg(), fc, cal, br)
}

func TestRunCloseWindowFlattensWithinWindow(t *testing.T) {
	br := broker.NewPaper(100000)
	br.SetPosition("AAPL", 10, 100)
	at := time.Date(2026, 3, 4, 15, 58, 0, 0, time.FixedZone("ET-test", -5*3600))

	f := newFlattener(t, at, br)
	n, err := f.RunCloseWindow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	positions, _ := br.GetPositions(context.Background())
	require.Empty(t, positions)
}

func TestRunCloseWindowNoopOutsideWindow(t *testing.T) {
	br := broker.NewPaper(100000)
	br.SetPosition("AAPL", 10, 100)
	at := time.Date(2026, 3, 4, 11, 0, 0, 0, time.FixedZone("ET-test", -5*3600))

	f := newFlattener(t, at, br)
	n, err := f.RunCloseWindow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)

	positions, _ := br.GetPositions(context.Background())
	require.Len(t, positions, 1)
}

func TestRunCloseWindowRepeatableNoopWhenAlreadyFlat(t *testing.T) {
	br := broker.NewPaper(100000)
	at := time.Date(2026, 3, 4, 15, 58, 0, 0, time.FixedZone("ET-test", -5*3600))

	f := newFlattener(t, at, br)
	n1, err := f.RunCloseWindow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n1)
	n2, err := f.RunCloseWindow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n2)
}

func TestRunOPGCleanupWindowFlattensWithinWindow(t *testing.T) {
	br := broker.NewPaper(100000)
	br.SetPosition("AAPL", -5, 100)
	at := time.Date(2026, 3, 4, 9, 30, 0, 0, time.FixedZone("ET-test", -5*3600))

	f := newFlattener(t, at, br)
	n, err := f.RunOPGCleanupWindow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRunOPGCleanupWindowNoopOutsideWindow(t *testing.T) {
	br := broker.NewPaper(100000)
	br.SetPosition("AAPL", -5, 100)
	at := time.Date(2026, 3, 4, 12, 0, 0, 0, time.FixedZone("ET-test", -5*3600))

	f := newFlattener(t, at, br)
	n, err := f.RunOPGCleanupWindow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
