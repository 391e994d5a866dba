package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// PaperBroker is an in-memory broker adapter, generalizing the teacher's
// PaperBroker (broker_paper.go): no external calls, uuid.New().String()
// order IDs, env-free in-memory balances. Idempotency-key deduplication is
// added here because spec §6/§8 requires the broker layer (or the
// dispatcher sitting in front of it) to refuse duplicate submissions
// without side effects.
type PaperBroker struct {
	mu        sync.Mutex
	equity    float64
	cash      float64
	positions map[string]PositionView
	seenKeys  map[string]OrderResult
}

// NewPaper constructs a PaperBroker with a starting equity/cash balance.
func NewPaper(startingEquity float64) *PaperBroker {
	return &PaperBroker{
		equity:    startingEquity,
		cash:      startingEquity,
		positions: make(map[string]PositionView),
		seenKeys:  make(map[string]OrderResult),
	}
}

func (p *PaperBroker) Name() string { return "paper" }

func (p *PaperBroker) SubmitMarketOrder(ctx context.Context, ticker string, side OrderSide, qty float64, idempotencyKey string, bracket *Bracket) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prior, ok := p.seenKeys[idempotencyKey]; ok {
		return OrderResult{OrderID: prior.OrderID, Status: StatusDuplicate}, nil
	}

	signedQty := qty
	if side == SideSell {
		signedQty = -qty
	}
	pos := p.positions[ticker]
	pos.Ticker = ticker
	pos.Qty += signedQty
	p.positions[ticker] = pos

	res := OrderResult{OrderID: uuid.New().String(), Status: StatusAccepted}
	p.seenKeys[idempotencyKey] = res
	return res, nil
}

func (p *PaperBroker) GetPositions(ctx context.Context) ([]PositionView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PositionView, 0, len(p.positions))
	for _, v := range p.positions {
		if v.Qty != 0 {
			out = append(out, v)
		}
	}
	return out, nil
}

func (p *PaperBroker) GetAccount(ctx context.Context) (AccountView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return AccountView{Equity: p.equity, Cash: p.cash, BuyingPower: p.cash}, nil
}

func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

func (p *PaperBroker) FlattenAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ticker, pos := range p.positions {
		if pos.Qty != 0 {
			pos.Qty = 0
			p.positions[ticker] = pos
		}
	}
	return nil
}

// SetPosition seeds a position directly; used by tests to set up EOD
// flatten scenarios without going through SubmitMarketOrder.
func (p *PaperBroker) SetPosition(ticker string, qty, avgPrice float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[ticker] = PositionView{Ticker: ticker, Qty: qty, AvgPrice: avgPrice}
}
