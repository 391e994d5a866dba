// Package llm defines the LLM text-analysis service external interface
// (spec §6), treated as a pure gated function per spec.md's scope note
// ("the LLM text-analysis service (treated as a pure gated function
// returning a sentiment structure)"). Grounded on the nested
// SynapseStrike module's mcp.AIClient interface shape
// (mcp/localai_client.go, mcp/architect_client.go) generalized down to
// exactly the narrow surface spec.md names — this repo does not need a
// full prompt-building/multi-provider client, only the Analyze boundary.
package llm

import "context"

// Context is the strict internal record passed to Analyze.
type Context struct {
	Ticker    string
	EventType string
}

// Insight is the strict internal shape coerced from the service's
// response, per spec.md §6.
type Insight struct {
	Sentiment      float64 // [-1, 1]
	Trigger        string
	HorizonMinutes int // [15, 480]
	Summary        string
}

// Service is the minimal LLM analysis surface.
type Service interface {
	Analyze(ctx context.Context, text string, c Context) (Insight, error)
}
