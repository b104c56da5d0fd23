package inference

import (
	"context"

	"github.com/quorvia/swarmroute/types"
)

// Invoker executes a task on a named agent and returns its raw result.
type Invoker interface {
	Invoke(ctx context.Context, agentID string, task *types.Task) (any, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, agentID string, task *types.Task) (any, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, agentID string, task *types.Task) (any, error) {
	return f(ctx, agentID, task)
}
