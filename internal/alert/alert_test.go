package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForReturnsNoopWhenURLEmpty(t *testing.T) {
	a := For("")
	_, ok := a.(NoopAlerter)
	require.True(t, ok)
	a.Post(context.Background(), "should be discarded")
}

func TestForReturnsWebhookWhenURLSet(t *testing.T) {
	a := For("http://example.invalid/hook")
	_, ok := a.(*WebhookAlerter)
	require.True(t, ok)
}

func TestWebhookAlerterPostsJSONBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewWebhook(srv.URL)
	a.Post(context.Background(), "kill switch tripped")
	require.Contains(t, gotBody, "kill switch tripped")
}
