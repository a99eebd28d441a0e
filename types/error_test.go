package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageFormat(t *testing.T) {
	err := NewError(ErrAgentNotFound, "agent missing")
	assert.Equal(t, "[AGENT_NOT_FOUND] agent missing", err.Error())

	cause := errors.New("connection refused")
	withCause := NewErrorf(ErrStepExecutionFailed, "tool %q failed", "search").WithCause(cause)
	assert.Equal(t, `[STEP_EXECUTION_FAILED] tool "search" failed: connection refused`, withCause.Error())
}

func TestError_UnwrapChain(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(ErrStateCorrupted, "bad payload").WithCause(cause)

	require.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("loading snapshot: %w", err)
	assert.Equal(t, ErrStateCorrupted, GetErrorCode(wrapped))
	assert.True(t, HasCode(wrapped, ErrStateCorrupted))
	assert.False(t, HasCode(wrapped, ErrSnapshotNotFound))
}

func TestGetErrorCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.False(t, HasCode(errors.New("plain"), ErrAgentNotFound))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(NewError(ErrToolNotFound, "missing")))
	assert.True(t, IsRetryable(NewError(ErrStepExecutionFailed, "flaky").WithRetryable(true)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestError_WithAgent(t *testing.T) {
	err := NewError(ErrAgentUnavailable, "inactive").WithAgent("researcher")
	assert.Equal(t, "researcher", err.AgentID)
}
