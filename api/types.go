package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/types"
)

// RegisterAgentRequest enrolls one agent into the swarm.
// @Description Agent registration request
type RegisterAgentRequest struct {
	// Unique agent identifier
	ID string `json:"id" example:"coder-1" binding:"required"`
	// Agent specialization (planner, coder, reviewer, ...)
	Type string `json:"type,omitempty" example:"coder"`
	// Human-readable display name
	Name string `json:"name,omitempty" example:"Primary coder"`
	// Lowercase expertise keywords matched against task descriptions
	Expertise []string `json:"expertise,omitempty"`
	// Maximum concurrent task count, must be positive
	Capacity int `json:"capacity" example:"5" binding:"required"`
	// Whether the agent is eligible for the local-inference fast path
	IsLocal bool `json:"is_local,omitempty" example:"true"`
}

// ToAgent converts the request into a registry agent. Workload, status,
// and timestamps are owned by the registry and never taken from the wire.
func (r *RegisterAgentRequest) ToAgent() *registry.Agent {
	return &registry.Agent{
		ID:        r.ID,
		Type:      registry.AgentType(r.Type),
		Name:      r.Name,
		Expertise: r.Expertise,
		Capacity:  r.Capacity,
		IsLocal:   r.IsLocal,
	}
}

// AgentListResponse lists registered agents in registration order.
// @Description Agent list response
type AgentListResponse struct {
	Agents []*registry.Agent `json:"agents"`
	Count  int               `json:"count" example:"3"`
}

// WorkloadUpdateRequest sets an agent's workload to an absolute value.
// @Description Workload update request
type WorkloadUpdateRequest struct {
	// New workload value, clamped at zero
	Workload int `json:"workload" example:"2"`
}

// DelegateRequest submits one task for delegation.
// @Description Task delegation request
type DelegateRequest struct {
	// Task identifier; generated when empty. Reuse the same ID across
	// retries to get sticky routing.
	TaskID string `json:"task_id,omitempty" example:"task-42"`
	// Free-text task description used for expertise matching
	Description string `json:"description,omitempty" example:"refactor the auth middleware"`
	// Task classification
	Type string `json:"type,omitempty" example:"code_generation"`
	// Caller-defined priority, carried through unmodified
	Priority int `json:"priority,omitempty" example:"1"`
	// Opaque payload handed to the executing agent
	Context map[string]any `json:"context,omitempty"`
}

// ToTask converts the request into a task, stamping submission time and
// filling a random ID when the caller supplied none.
func (r *DelegateRequest) ToTask() *types.Task {
	id := r.TaskID
	if id == "" {
		id = uuid.NewString()
	}
	return &types.Task{
		ID:          id,
		Description: r.Description,
		Type:        r.Type,
		Priority:    r.Priority,
		Context:     r.Context,
		SubmittedAt: time.Now(),
	}
}

// TrustScoreResponse reports one agent's standing with the trust evaluator.
// @Description Trust score response
type TrustScoreResponse struct {
	AgentID string `json:"agent_id" example:"coder-1"`
	// Exponentially weighted trust score in [0, 1]
	TrustScore float64 `json:"trust_score" example:"0.82"`
	// Number of outcomes recorded for the agent
	Interactions int `json:"interactions" example:"17"`
	// Routing threshold below which agents are filtered out
	MinThreshold float64 `json:"min_threshold" example:"0.3"`
}
