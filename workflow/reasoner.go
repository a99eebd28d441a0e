package workflow

import (
	"context"

	"github.com/BaSui01/agentcoord/types"
)

// ReasonResult is what one reasoning invocation produces: free-form
// content, an optional structured decision, and token accounting.
type ReasonResult struct {
	Content  string
	Decision *Decision
	Usage    types.TokenUsage
}

// Reasoner is the boundary to the model layer. The engine treats a
// returned error as a step failure; it never inspects the cause.
type Reasoner interface {
	Invoke(ctx context.Context, modelID, prompt string) (*ReasonResult, error)
}

// ReasonerFunc adapts a function to the Reasoner interface.
type ReasonerFunc func(ctx context.Context, modelID, prompt string) (*ReasonResult, error)

func (f ReasonerFunc) Invoke(ctx context.Context, modelID, prompt string) (*ReasonResult, error) {
	return f(ctx, modelID, prompt)
}
