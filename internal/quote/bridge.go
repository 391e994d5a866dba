package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/example/sigpipe/internal/bars"
)

// BridgeProvider fetches bars/prices from an HTTP sidecar, generalizing
// the teacher's tools/backfill_bridge.go HTTP-GET-then-JSON-decode idiom
// (normalizeList/toRows/asString coercion at the boundary) into the Quote
// Provider interface. Fields are loosely typed on the wire and coerced
// here per spec §9's "Dynamic types at I/O edges" rule.
type BridgeProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewBridge constructs a BridgeProvider with a bounded-timeout client.
func NewBridge(baseURL string, timeout time.Duration) *BridgeProvider {
	return &BridgeProvider{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

type wireBar struct {
	Ticker string      `json:"ticker"`
	TS     any         `json:"ts"`
	Open   any         `json:"open"`
	High   any         `json:"high"`
	Low    any         `json:"low"`
	Close  any         `json:"close"`
	Volume any         `json:"volume"`
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
	case float64:
		return time.Unix(int64(t), 0).UTC()
	}
	return time.Time{}
}

func (b *BridgeProvider) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bridge read failed: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bridge malformed response: %w", err)
	}
	return nil
}

func (b *BridgeProvider) GetBars(ctx context.Context, ticker string, sinceTS time.Time) ([]bars.Bar, error) {
	var wire []wireBar
	path := fmt.Sprintf("/bars?ticker=%s&since=%d", ticker, sinceTS.Unix())
	if err := b.doGet(ctx, path, &wire); err != nil {
		return nil, err
	}
	out := make([]bars.Bar, 0, len(wire))
	for _, w := range wire {
		out = append(out, bars.Bar{
			Ticker: ticker,
			TS:     asTime(w.TS),
			Open:   asFloat(w.Open),
			High:   asFloat(w.High),
			Low:    asFloat(w.Low),
			Close:  asFloat(w.Close),
			Volume: asFloat(w.Volume),
		})
	}
	return out, nil
}

func (b *BridgeProvider) GetLastPrice(ctx context.Context, ticker string) (LastPrice, error) {
	var wire struct {
		Price  any `json:"price"`
		TS     any `json:"ts"`
		Spread any `json:"spread_est"`
	}
	path := fmt.Sprintf("/last_price?ticker=%s", ticker)
	if err := b.doGet(ctx, path, &wire); err != nil {
		return LastPrice{}, err
	}
	return LastPrice{Price: asFloat(wire.Price), TS: asTime(wire.TS), SpreadEst: asFloat(wire.Spread)}, nil
}
