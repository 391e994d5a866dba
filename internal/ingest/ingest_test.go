package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/sigpipe/internal/bars"
	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/quote"
	"github.com/example/sigpipe/internal/ratelimit"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	bs  []bars.Bar
	err error
	calls int
}

func (f *fakeProvider) GetBars(ctx context.Context, ticker string, since time.Time) ([]bars.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bs, nil
}

func (f *fakeProvider) GetLastPrice(ctx context.Context, ticker string) (quote.LastPrice, error) {
	return quote.LastPrice{}, nil
}

var _ quote.Provider = (*fakeProvider)(nil)

func tiersCfg() config.TiersConfig {
	return config.TiersConfig{
		A: config.TierConfig{Tickers: []string{"AAPL"}, CadenceSeconds: 15},
	}
}

func TestTickIngestsDueTickerAndAdvancesTimestamp(t *testing.T) {
	fc := &clock.FixedClock{At: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)}
	limiter := ratelimit.New(fc, 10, 10, 10, time.Minute)
	store := bars.New(120)
	prov := &fakeProvider{bs: []bars.Bar{{Ticker: "AAPL", TS: fc.At, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}}}

	s := New(tiersCfg(), fc, limiter, store, prov)
	s.Tick(context.Background(), time.Second)

	require.Equal(t, 1, prov.calls)
	require.Len(t, store.Window("AAPL"), 1)
}

func TestTickSkipsTickerNotYetDue(t *testing.T) {
	fc := &clock.FixedClock{At: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)}
	limiter := ratelimit.New(fc, 10, 10, 10, time.Minute)
	store := bars.New(120)
	prov := &fakeProvider{bs: []bars.Bar{{Ticker: "AAPL", TS: fc.At, Close: 100, Volume: 10}}}

	s := New(tiersCfg(), fc, limiter, store, prov)
	s.Tick(context.Background(), time.Second)
	fc.At = fc.At.Add(5 * time.Second) // cadence is 15s
	s.Tick(context.Background(), time.Second)

	require.Equal(t, 1, prov.calls)
}

func TestTickDoesNotAdvanceTimestampOnFailure(t *testing.T) {
	fc := &clock.FixedClock{At: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)}
	limiter := ratelimit.New(fc, 10, 10, 10, time.Minute)
	store := bars.New(120)
	prov := &fakeProvider{err: errors.New("network down")}

	s := New(tiersCfg(), fc, limiter, store, prov)
	s.Tick(context.Background(), time.Second)
	fc.At = fc.At.Add(time.Second) // well under cadence, but last ingest never recorded
	s.Tick(context.Background(), time.Second)

	require.Equal(t, 2, prov.calls)
}

func TestTickSkipsWhenBucketExhausted(t *testing.T) {
	fc := &clock.FixedClock{At: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)}
	limiter := ratelimit.New(fc, 0, 10, 0, time.Minute)
	store := bars.New(120)
	prov := &fakeProvider{bs: []bars.Bar{{Ticker: "AAPL", TS: fc.At, Close: 100, Volume: 10}}}

	s := New(tiersCfg(), fc, limiter, store, prov)
	s.Tick(context.Background(), time.Second)

	require.Equal(t, 0, prov.calls)
	require.Empty(t, store.Window("AAPL"))
}
