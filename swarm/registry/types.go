package registry

import (
	"strings"
	"time"

	"github.com/quorvia/swarmroute/types"
)

// AgentType classifies what kind of work an agent specializes in.
type AgentType string

const (
	// AgentTypePlanner decomposes goals into executable tasks.
	AgentTypePlanner AgentType = "planner"
	// AgentTypeCoder generates and edits code.
	AgentTypeCoder AgentType = "coder"
	// AgentTypeReviewer reviews work produced by other agents.
	AgentTypeReviewer AgentType = "reviewer"
	// AgentTypeDebugger isolates and fixes defects.
	AgentTypeDebugger AgentType = "debugger"
	// AgentTypeOptimizer improves performance of existing work.
	AgentTypeOptimizer AgentType = "optimizer"
	// AgentTypeTester writes and runs verification suites.
	AgentTypeTester AgentType = "tester"
	// AgentTypeResearcher gathers information and evidence.
	AgentTypeResearcher AgentType = "researcher"
	// AgentTypeErrorExplainer turns failures into human-readable diagnoses.
	AgentTypeErrorExplainer AgentType = "error-explainer"
	// AgentTypeCustom is for caller-defined specializations.
	AgentTypeCustom AgentType = "custom"
)

// AgentStatus represents the observed liveness of an agent. Status is
// observability only: it never removes an agent and never feeds scoring.
type AgentStatus string

const (
	// AgentStatusOnline means the agent heartbeats within the freshness window.
	AgentStatusOnline AgentStatus = "online"
	// AgentStatusDegraded means heartbeats have gone stale.
	AgentStatusDegraded AgentStatus = "degraded"
	// AgentStatusOffline means heartbeats stopped long enough to presume the
	// agent gone. The agent still stays registered until unregistered.
	AgentStatusOffline AgentStatus = "offline"
)

// Agent is a worker in the swarm: typed expertise, a workload counter, and a
// capacity ceiling. Workload may transiently exceed capacity as an overload
// signal but never goes negative.
type Agent struct {
	// ID uniquely identifies the agent in the registry.
	ID string `json:"id"`

	// Type is the agent's specialization.
	Type AgentType `json:"type"`

	// Name is the human-readable display name.
	Name string `json:"name,omitempty"`

	// Expertise is a set of lowercase keywords matched against task
	// descriptions.
	Expertise []string `json:"expertise,omitempty"`

	// Workload is the number of tasks currently assigned.
	Workload int `json:"workload"`

	// Capacity is the maximum concurrent task count. Must be positive.
	Capacity int `json:"capacity"`

	// IsLocal marks agents eligible for the local-inference fast path.
	IsLocal bool `json:"is_local"`

	// Status reflects heartbeat freshness.
	Status AgentStatus `json:"status,omitempty"`

	// RegisteredAt is set by the registry on registration.
	RegisteredAt time.Time `json:"registered_at,omitempty"`

	// LastHeartbeat is updated by Heartbeat and workload mutations.
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// Validate checks the fields a caller must supply.
func (a *Agent) Validate() error {
	if a == nil {
		return types.NewError(types.ErrInvalidRequest, "agent is nil")
	}
	if a.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "agent ID is empty")
	}
	if a.Capacity <= 0 {
		return types.NewError(types.ErrInvalidRequest, "agent capacity must be positive").WithAgentID(a.ID)
	}
	if a.Workload < 0 {
		return types.NewError(types.ErrInvalidRequest, "agent workload cannot be negative").WithAgentID(a.ID)
	}
	return nil
}

// HasSpareCapacity reports whether the agent can take another task.
func (a *Agent) HasSpareCapacity() bool {
	return a.Workload < a.Capacity
}

// WorkloadFactor returns the remaining headroom in [0,1]: 1 means idle,
// 0 means at capacity. Overloaded agents return 0, not a negative value.
func (a *Agent) WorkloadFactor() float64 {
	if a.Capacity <= 0 {
		return 0
	}
	f := 1 - float64(a.Workload)/float64(a.Capacity)
	if f < 0 {
		return 0
	}
	return f
}

// ExpertiseMatch returns the fraction of the agent's expertise keywords that
// appear as case-insensitive substrings of the description. An empty
// expertise set matches nothing and returns 0.
func (a *Agent) ExpertiseMatch(description string) float64 {
	if len(a.Expertise) == 0 || description == "" {
		return 0
	}
	desc := strings.ToLower(description)
	matched := 0
	for _, kw := range a.Expertise {
		if kw == "" {
			continue
		}
		if strings.Contains(desc, strings.ToLower(kw)) {
			matched++
		}
	}
	return float64(matched) / float64(len(a.Expertise))
}

// Clone returns a deep copy safe to hand outside the registry.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	cp := *a
	if len(a.Expertise) > 0 {
		cp.Expertise = make([]string, len(a.Expertise))
		copy(cp.Expertise, a.Expertise)
	}
	return &cp
}

// RegistryEventType identifies what happened in the registry.
type RegistryEventType string

const (
	// EventAgentRegistered fires after a successful Register.
	EventAgentRegistered RegistryEventType = "agent.registered"
	// EventAgentUnregistered fires after a successful Unregister.
	EventAgentUnregistered RegistryEventType = "agent.unregistered"
	// EventAgentStatusChanged fires when the staleness checker flips status.
	EventAgentStatusChanged RegistryEventType = "agent.status_changed"
)

// RegistryEvent describes a registry state change.
type RegistryEvent struct {
	Type      RegistryEventType `json:"type"`
	AgentID   string            `json:"agent_id"`
	Status    AgentStatus       `json:"status,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// RegistryEventHandler receives registry events. Handlers run on their own
// goroutines and must not block registry operations.
type RegistryEventHandler func(event *RegistryEvent)

// Registry is the contract the rest of the swarm depends on.
type Registry interface {
	// Register inserts a new agent. Duplicate IDs are rejected.
	Register(agent *Agent) error

	// Unregister removes an agent by ID.
	Unregister(agentID string) error

	// Get returns a copy of the agent, if registered.
	Get(agentID string) (*Agent, bool)

	// List returns copies of all agents in registration order.
	List() []*Agent

	// Count returns the number of registered agents.
	Count() int

	// UpdateWorkload sets an agent's workload to an absolute value.
	// It is a no-op when the agent is absent; negative values clamp to 0.
	UpdateWorkload(agentID string, workload int)

	// IncrementWorkload adjusts an agent's workload by delta, clamping at 0.
	// Task start and finish must go through here, never raw assignment.
	IncrementWorkload(agentID string, delta int) error

	// Heartbeat refreshes an agent's liveness timestamp.
	Heartbeat(agentID string) error

	// Subscribe registers an event handler and returns a subscription ID.
	Subscribe(handler RegistryEventHandler) string

	// Unsubscribe removes a previously registered handler.
	Unsubscribe(subscriptionID string)

	// Close stops background processes.
	Close() error
}
