// Package alert implements a Slack-style Alerter, generalizing the
// teacher's postSlack (trader.go) free function — a fire-and-forget,
// timeout-bounded webhook POST gated on an empty-webhook no-op — into an
// injectable interface with a Noop implementation for tests and paper
// mode.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/sigpipe/internal/log"
)

// Alerter posts operator-facing notifications. The pipeline posts the EOD
// close-window and OPG-cleanup flatten summaries through it.
type Alerter interface {
	Post(ctx context.Context, message string)
}

// NoopAlerter discards every message; the default when no webhook is
// configured.
type NoopAlerter struct{}

func (NoopAlerter) Post(ctx context.Context, message string) {}

// WebhookAlerter posts to a Slack-compatible incoming webhook, exactly
// mirroring the teacher's postSlack body shape ({"text": msg}) and
// 3-second timeout.
type WebhookAlerter struct {
	webhookURL string
	client     *http.Client
}

// NewWebhook constructs a WebhookAlerter. If url is empty, callers should
// use NoopAlerter instead — the For helper makes that choice for them.
func NewWebhook(url string) *WebhookAlerter {
	return &WebhookAlerter{webhookURL: url, client: &http.Client{Timeout: 5 * time.Second}}
}

// For returns a WebhookAlerter when url is non-empty, otherwise a
// NoopAlerter, mirroring the teacher's postSlack early-return-on-empty-
// hook behavior as a constructor decision instead of a per-call check.
func For(url string) Alerter {
	if url == "" {
		return NoopAlerter{}
	}
	return NewWebhook(url)
}

func (w *WebhookAlerter) Post(ctx context.Context, message string) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		log.With("alert").Warn().Err(err).Msg("webhook post failed")
		return
	}
	resp.Body.Close()
}
