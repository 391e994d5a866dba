// Package eod implements the EOD Flattener of spec §4.12: a windowed,
// repeatable-safe task that flattens all open positions near the close,
// plus a second opening-window task that cleans residual positions using
// OPG semantics. Grounded on the teacher's RehydratePending (trader.go)
// idempotent-on-repeat scan-and-act loop, generalized from "repair
// pending state on restart" to "flatten everything in a recurring
// window".
package eod

import (
	"context"

	"github.com/example/sigpipe/internal/broker"
	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/metrics"
)

// Flattener runs the close-window flatten and the opening-window OPG
// cleanup. It holds no state of its own beyond its dependencies: running
// it repeatedly within either window is always safe because flattening an
// already-flat position is a no-op (spec §4.12).
type Flattener struct {
	cfg    config.EODConfig
	clock  clock.Clock
	cal    *clock.Calendar
	broker broker.Broker
}

// New constructs a Flattener.
func New(cfg config.EODConfig, clk clock.Clock, cal *clock.Calendar, br broker.Broker) *Flattener {
	return &Flattener{cfg: cfg, clock: clk, cal: cal, broker: br}
}

// RunCloseWindow flattens every open position if now falls within
// [close - FlattenMinutesBeforeClose, close]. Safe to call on every tick;
// positions already at zero qty are skipped.
func (f *Flattener) RunCloseWindow(ctx context.Context) (int, error) {
	now := f.clock.Now()
	if !f.cal.IsEODFlattenWindow(now, f.cfg.FlattenMinutesBeforeClose) {
		return 0, nil
	}
	return f.flattenAll(ctx)
}

// RunOPGCleanupWindow cleans residual positions during the configured
// opening auction window (spec §4.12's second task).
func (f *Flattener) RunOPGCleanupWindow(ctx context.Context) (int, error) {
	now := f.clock.Now()
	if !f.cal.IsOPGCleanupWindow(now, f.cfg.OPGCleanupStart, f.cfg.OPGCleanupEnd) {
		return 0, nil
	}
	return f.flattenAll(ctx)
}

func (f *Flattener) flattenAll(ctx context.Context) (int, error) {
	positions, err := f.broker.GetPositions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range positions {
		if p.Qty == 0 {
			continue
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := f.broker.FlattenAll(ctx); err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.Qty != 0 {
			metrics.EODFlattensIssued.WithLabelValues(p.Ticker).Inc()
		}
	}
	return n, nil
}
