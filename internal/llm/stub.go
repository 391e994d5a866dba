package llm

import (
	"context"
	"math"
	"strings"
)

// StubService is a deterministic pure function standing in for a real LLM
// call, used in tests and paper mode — spec.md explicitly treats the LLM
// as "a pure gated function returning a sentiment structure", so no
// network client is required here for the pipeline to be fully testable.
// It derives sentiment from the text's rough positive/negative word
// balance, the simplest possible grounding that keeps Analyze pure.
type StubService struct{}

func NewStub() StubService { return StubService{} }

var positiveWords = []string{"beat", "raise", "upgrade", "strong", "surge", "record"}
var negativeWords = []string{"miss", "cut", "downgrade", "weak", "plunge", "probe", "lawsuit"}

func (StubService) Analyze(ctx context.Context, text string, c Context) (Insight, error) {
	lower := strings.ToLower(text)
	score := 0.0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			score += 0.2
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			score -= 0.2
		}
	}
	score = math.Max(-1, math.Min(1, score))

	horizon := 60
	if c.EventType == "edgar" {
		horizon = 240
	}
	return Insight{
		Sentiment:      score,
		Trigger:        c.EventType,
		HorizonMinutes: horizon,
		Summary:        "stub analysis for " + c.Ticker,
	}, nil
}
