// Package mocks provides scripted fakes for swarmroute tests.
//
// All fakes are safe for concurrent use and configured builder-style,
// with error injection for failure-path tests.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/quorvia/swarmroute/swarm/inference"
	"github.com/quorvia/swarmroute/types"
)

// InvokerCall records one Invoke observed by a ScriptedInvoker.
type InvokerCall struct {
	AgentID string
	TaskID  string
}

// ScriptedInvoker is a configurable inference.Invoker. By default it
// echoes the agent and task IDs; builders switch it to a fixed result,
// a blanket error, per-agent errors, or failure after the first n
// calls. Every call is recorded.
type ScriptedInvoker struct {
	mu sync.Mutex

	result    any
	err       error
	agentErrs map[string]error
	failAfter int
	failErr   error
	delay     time.Duration

	calls []InvokerCall
}

// NewScriptedInvoker creates an invoker that succeeds on every call.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{agentErrs: make(map[string]error)}
}

// WithResult sets the payload returned on success.
func (m *ScriptedInvoker) WithResult(result any) *ScriptedInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	return m
}

// WithError makes every call fail with err.
func (m *ScriptedInvoker) WithError(err error) *ScriptedInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// FailFor makes calls for agentID fail with err while other agents
// keep succeeding.
func (m *ScriptedInvoker) FailFor(agentID string, err error) *ScriptedInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentErrs[agentID] = err
	return m
}

// FailAfter makes every call past the first n fail with err.
func (m *ScriptedInvoker) FailAfter(n int, err error) *ScriptedInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
	return m
}

// WithDelay makes each call wait for d before answering, honoring
// context cancellation.
func (m *ScriptedInvoker) WithDelay(d time.Duration) *ScriptedInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Invoke implements inference.Invoker.
func (m *ScriptedInvoker) Invoke(ctx context.Context, agentID string, task *types.Task) (any, error) {
	m.mu.Lock()
	taskID := ""
	if task != nil {
		taskID = task.ID
	}
	m.calls = append(m.calls, InvokerCall{AgentID: agentID, TaskID: taskID})
	n := len(m.calls)
	result := m.result
	err := m.err
	if agentErr, ok := m.agentErrs[agentID]; ok {
		err = agentErr
	}
	failAfter := m.failAfter
	failErr := m.failErr
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if failErr != nil && n > failAfter {
		return nil, failErr
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return map[string]any{"agent": agentID, "task": taskID}, nil
}

// Calls returns a copy of the recorded calls.
func (m *ScriptedInvoker) Calls() []InvokerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]InvokerCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of recorded calls.
func (m *ScriptedInvoker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor returns how many recorded calls targeted agentID.
func (m *ScriptedInvoker) CallsFor(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.AgentID == agentID {
			n++
		}
	}
	return n
}

// Reset clears the recorded calls.
func (m *ScriptedInvoker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ inference.Invoker = (*ScriptedInvoker)(nil)
