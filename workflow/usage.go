package workflow

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/agentcoord/types"
)

const fallbackCharsPerToken = 4

// UsageEstimator counts tokens for step accounting when the reasoner
// does not report usage itself. The tiktoken encoding is initialized
// lazily because GetEncoding may fetch data on first use; when it
// fails the estimator falls back to a characters-per-token heuristic.
type UsageEstimator struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
}

// NewUsageEstimator creates an estimator over the cl100k_base encoding.
func NewUsageEstimator() *UsageEstimator {
	return &UsageEstimator{encoding: "cl100k_base"}
}

func (e *UsageEstimator) init() {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			return
		}
		e.enc = enc
	})
}

// Count returns the token count of text, estimated when the encoding
// is unavailable.
func (e *UsageEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.init()
	if e.enc == nil {
		return (len(text) + fallbackCharsPerToken - 1) / fallbackCharsPerToken
	}
	return len(e.enc.Encode(text, nil, nil))
}

// Estimate builds usage for a prompt/completion pair.
func (e *UsageEstimator) Estimate(prompt, completion string) types.TokenUsage {
	p := e.Count(prompt)
	c := e.Count(completion)
	return types.TokenUsage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
	}
}
