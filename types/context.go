package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyConversationID contextKey = "conversation_id"
	keyAgentID        contextKey = "agent_id"
	keyWorkflowID     contextKey = "workflow_id"
)

// WithConversationID adds conversation ID to context.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, keyConversationID, conversationID)
}

// ConversationID extracts conversation ID from context.
func ConversationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyConversationID).(string)
	return v, ok && v != ""
}

// WithAgentID adds the acting agent ID to context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, keyAgentID, agentID)
}

// AgentID extracts the acting agent ID from context.
func AgentID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyAgentID).(string)
	return v, ok && v != ""
}

// WithWorkflowID adds workflow ID to context.
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, keyWorkflowID, workflowID)
}

// WorkflowID extracts workflow ID from context.
func WorkflowID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyWorkflowID).(string)
	return v, ok && v != ""
}
