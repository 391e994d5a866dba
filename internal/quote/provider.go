// Package quote defines the Quote Provider external interface (spec §6),
// the boundary the Quote Ingestor reads through. Concrete providers return
// loosely typed records; this package defines the strict internal record
// types that implementations coerce into at the boundary — mirroring the
// teacher's PlacedOrder JSON-tag coercion in broker.go. BridgeProvider
// returns an error for a failed request, a non-200 status or a body that
// is not valid JSON; a field it cannot parse becomes zero (the zero time
// for ts) rather than an error.
package quote

import (
	"context"
	"time"

	"github.com/example/sigpipe/internal/bars"
)

// LastPrice is the strict internal shape for get_last_price.
type LastPrice struct {
	Price     float64
	TS        time.Time
	SpreadEst float64
}

// Provider is the minimal surface the Quote Ingestor needs.
type Provider interface {
	// GetBars returns 30s-aligned bars for ticker since sinceTS.
	GetBars(ctx context.Context, ticker string, sinceTS time.Time) ([]bars.Bar, error)
	// GetLastPrice returns the latest traded price for ticker.
	GetLastPrice(ctx context.Context, ticker string) (LastPrice, error)
}
