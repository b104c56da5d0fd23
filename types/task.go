package types

import "time"

// Task is a unit of work submitted for delegation. Tasks are immutable once
// submitted to the core: the router and orchestrator read them but never
// mutate them, and the core never persists them.
type Task struct {
	// ID identifies the task. Routing stickiness is keyed on it, so callers
	// that want sticky routing must reuse the same ID across retries.
	ID string `json:"id"`

	// Description is free text. It may be empty; an empty description
	// degrades expertise matching to zero but never fails a call.
	Description string `json:"description,omitempty"`

	// Type classifies the work (e.g. "code_generation", "review").
	Type string `json:"type,omitempty"`

	// Priority orders tasks at the caller's discretion. The core carries it
	// through but does not schedule on it.
	Priority int `json:"priority,omitempty"`

	// Context is an opaque payload handed to the executing agent.
	Context map[string]any `json:"context,omitempty"`

	// SubmittedAt is stamped by the caller; zero means unknown.
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
}

// ContextValue returns the string value for key in the task context, if any.
func (t *Task) ContextValue(key string) (string, bool) {
	if t == nil || t.Context == nil {
		return "", false
	}
	v, ok := t.Context[key].(string)
	return v, ok && v != ""
}

// TaskOutcome reports how an agent's execution of a task ended. It feeds the
// trust evaluator; PerformanceScore is optional and defaults from Success.
type TaskOutcome struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Success bool   `json:"success"`

	// PerformanceScore in [0,1] grades the execution beyond pass/fail.
	// Nil means derive it from Success (1.0 or 0.0).
	PerformanceScore *float64  `json:"performance_score,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Score resolves the effective performance score for the outcome.
func (o TaskOutcome) Score() float64 {
	if o.PerformanceScore != nil {
		return clamp01(*o.PerformanceScore)
	}
	if o.Success {
		return 1.0
	}
	return 0.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
