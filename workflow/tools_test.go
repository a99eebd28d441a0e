package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcoord/types"
)

func TestToolRegistry_RegisterLastWriteWins(t *testing.T) {
	r := NewToolRegistry()
	r.Register(Tool{Name: "echo", Handler: func(ctx context.Context, args map[string]any) (any, error) {
		return "first", nil
	}})
	r.Register(Tool{Name: "echo", Handler: func(ctx context.Context, args map[string]any) (any, error) {
		return "second", nil
	}})

	result, err := r.Invoke(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", result)
	assert.Equal(t, []string{"echo"}, r.Names())
}

func TestToolRegistry_InvokeUnknown(t *testing.T) {
	r := NewToolRegistry()

	_, err := r.Invoke(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrToolNotFound, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestToolRegistry_Unregister(t *testing.T) {
	r := NewToolRegistry()
	r.Register(Tool{Name: "echo", Handler: func(ctx context.Context, args map[string]any) (any, error) {
		return args, nil
	}})

	r.Unregister("echo")
	_, ok := r.Get("echo")
	assert.False(t, ok)
	assert.Empty(t, r.Names())
}
