package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// BridgeBroker talks to a local HTTP sidecar fronting the real equities
// broker, generalizing the teacher's BridgeBroker (broker_bridge.go): same
// trimmed-base-URL construction, same flexible-field JSON parsing
// (readStr-style fallback across several possible key names) because a
// sidecar's response shape is not under this repo's control. Per spec's
// Non-goal excluding "any particular broker's wire protocol", this adapter
// speaks only a generic sidecar JSON contract, not a named vendor's API.
type BridgeBroker struct {
	base string
	hc   *http.Client
}

// NewBridgeBroker constructs a BridgeBroker against baseURL.
func NewBridgeBroker(baseURL string, timeout time.Duration) *BridgeBroker {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = "http://127.0.0.1:8787"
	}
	base = strings.TrimRight(base, "/")
	return &BridgeBroker{base: base, hc: &http.Client{Timeout: timeout}}
}

func (b *BridgeBroker) Name() string { return "bridge" }

func (b *BridgeBroker) SubmitMarketOrder(ctx context.Context, ticker string, side OrderSide, qty float64, idempotencyKey string, bracket *Bracket) (OrderResult, error) {
	body := map[string]any{
		"ticker":          ticker,
		"side":            strings.ToUpper(string(side)),
		"qty":             qty,
		"idempotency_key": idempotencyKey,
	}
	if bracket != nil {
		body["stop"] = bracket.Stop
		body["target"] = bracket.Target
	}
	bs, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/orders/market", bytes.NewReader(bs))
	if err != nil {
		return OrderResult{}, fmt.Errorf("newrequest order: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.hc.Do(req)
	if err != nil {
		return OrderResult{}, err
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)

	if res.StatusCode == http.StatusServiceUnavailable {
		return OrderResult{Status: StatusMarketClosed}, nil
	}
	if res.StatusCode >= 300 {
		return OrderResult{}, fmt.Errorf("order submit %d: %s", res.StatusCode, string(raw))
	}

	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	orderID := readStr(m, "order_id", "orderId", "id")
	status := strings.ToLower(readStr(m, "status"))

	var st OrderStatus
	switch status {
	case "duplicate":
		st = StatusDuplicate
	case "rejected":
		st = StatusRejected
	case "market_closed":
		st = StatusMarketClosed
	default:
		st = StatusAccepted
	}
	return OrderResult{OrderID: orderID, Status: st}, nil
}

func (b *BridgeBroker) GetPositions(ctx context.Context) ([]PositionView, error) {
	var rows []map[string]any
	if err := b.getJSON(ctx, "/positions", &rows); err != nil {
		return nil, err
	}
	out := make([]PositionView, 0, len(rows))
	for _, r := range rows {
		out = append(out, PositionView{
			Ticker:   readStr(r, "ticker", "symbol"),
			Qty:      asFloat(r["qty"]),
			AvgPrice: asFloat(r["avg_price"]),
		})
	}
	return out, nil
}

func (b *BridgeBroker) GetAccount(ctx context.Context) (AccountView, error) {
	var m map[string]any
	if err := b.getJSON(ctx, "/account", &m); err != nil {
		return AccountView{}, err
	}
	return AccountView{
		Equity:      asFloat(m["equity"]),
		Cash:        asFloat(m["cash"]),
		BuyingPower: asFloat(m["buying_power"]),
	}, nil
}

func (b *BridgeBroker) CancelOrder(ctx context.Context, orderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/orders/"+orderID+"/cancel", nil)
	if err != nil {
		return err
	}
	res, err := b.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cancel %d: %s", res.StatusCode, string(raw))
	}
	return nil
}

func (b *BridgeBroker) FlattenAll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/positions/flatten_all", nil)
	if err != nil {
		return err
	}
	res, err := b.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("flatten_all %d: %s", res.StatusCode, string(raw))
	}
	return nil
}

func (b *BridgeBroker) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+path, nil)
	if err != nil {
		return err
	}
	res, err := b.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s %d: %s", path, res.StatusCode, string(raw))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// readStr mirrors the teacher's broker_bridge.go readStr helper: try
// several possible key names since a sidecar's response shape is not
// under our control.
func readStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
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
