package quote

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/example/sigpipe/internal/bars"
)

// PaperProvider is an in-memory deterministic-ish quote source for paper
// trading and tests, generalizing the teacher's PaperBroker
// (broker_paper.go)'s single-mutex-guarded last-price idiom to a
// per-ticker map.
type PaperProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand
}

// NewPaper constructs a PaperProvider whose random walk is driven by seed;
// a ticker not set via SetPrice starts at 100.0 on first read, matching the
// teacher's "bootstrap to a default if unset" idiom in broker_paper.go.
func NewPaper(seed int64) *PaperProvider {
	return &PaperProvider{prices: make(map[string]float64), rng: rand.New(rand.NewSource(seed))}
}

// SetPrice seeds or overrides ticker's current price (used by tests to
// drive specific scenarios).
func (p *PaperProvider) SetPrice(ticker string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[ticker] = price
}

func (p *PaperProvider) priceFor(ticker string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.prices[ticker]
	if !ok {
		v = 100.0
	}
	// small random walk so repeated polls aren't perfectly flat
	v += (p.rng.Float64() - 0.5) * 0.02 * v
	p.prices[ticker] = v
	return v
}

func (p *PaperProvider) GetBars(ctx context.Context, ticker string, sinceTS time.Time) ([]bars.Bar, error) {
	price := p.priceFor(ticker)
	now := time.Now().UTC()
	return []bars.Bar{{
		Ticker: ticker, TS: now,
		Open: price, High: price, Low: price, Close: price,
		Volume: 1000,
	}}, nil
}

func (p *PaperProvider) GetLastPrice(ctx context.Context, ticker string) (LastPrice, error) {
	price := p.priceFor(ticker)
	return LastPrice{Price: price, TS: time.Now().UTC(), SpreadEst: 0.01}, nil
}
