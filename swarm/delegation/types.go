package delegation

import (
	"time"

	"github.com/quorvia/swarmroute/swarm/events"
	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/swarm/risk"
	"github.com/quorvia/swarmroute/swarm/routing"
	"github.com/quorvia/swarmroute/types"
)

// ErrMsgNoAgents is the terminal error string for delegation against an
// empty registry.
const ErrMsgNoAgents = "No agents registered in swarm"

// DelegationMetrics measures one delegation end to end.
type DelegationMetrics struct {
	// DurationMs is wall time from call start to the terminal transition.
	DurationMs float64 `json:"duration_ms"`

	// LatencyWithinTarget reports DurationMs < the configured target.
	// The target is a measured SLA, not an enforced timeout.
	LatencyWithinTarget bool `json:"latency_within_target"`

	// Path names the invocation path that produced the terminal result,
	// "local" or "consensus". Empty when no agent was ever attempted.
	Path string `json:"path,omitempty"`
}

// DelegationResult is the uniform outcome of a delegation. A failed result
// always carries a non-empty Error; a successful one always carries
// DelegatedToAgentID.
type DelegationResult struct {
	TaskID             string             `json:"task_id"`
	Success            bool               `json:"success"`
	DelegatedToAgentID string             `json:"delegated_to_agent_id,omitempty"`
	Result             any                `json:"result,omitempty"`
	Metrics            *DelegationMetrics `json:"metrics,omitempty"`
	Error              string             `json:"error,omitempty"`
}

// Config is the orchestrator configuration. It is mutable at runtime via
// UpdateConfig; in-flight delegations keep the snapshot they started with.
type Config struct {
	// EnableLocalInference turns the local-first attempt on.
	EnableLocalInference bool `json:"enable_local_inference" yaml:"enable_local_inference"`

	// EnableTrustRouting asks the scorer for trust-aware ranking when a
	// trust source is attached.
	EnableTrustRouting bool `json:"enable_trust_routing" yaml:"enable_trust_routing"`

	// LatencyTargetMs is the measured latency SLA.
	LatencyTargetMs float64 `json:"latency_target_ms" yaml:"latency_target_ms"`

	// Now supplies the clock, overridable in tests.
	Now func() time.Time `json:"-" yaml:"-"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		EnableLocalInference: true,
		EnableTrustRouting:   true,
		LatencyTargetMs:      2000,
		Now:                  time.Now,
	}
}

// ConfigUpdate carries a partial runtime reconfiguration. Nil fields leave
// the current value untouched.
type ConfigUpdate struct {
	EnableLocalInference *bool    `json:"enable_local_inference,omitempty"`
	EnableTrustRouting   *bool    `json:"enable_trust_routing,omitempty"`
	LatencyTargetMs      *float64 `json:"latency_target_ms,omitempty"`
}

// Router ranks an agent pool and picks one agent for a task.
// *routing.TaskScorer satisfies it.
type Router interface {
	Route(task *types.Task, agents []*registry.Agent, trust *routing.TrustInfo, riskScores map[string]float64) (*routing.RoutingDecision, error)
}

// TrustSource feeds trust-aware routing and absorbs task outcomes.
// *trust.TrustEvaluator satisfies it.
type TrustSource interface {
	Snapshot() map[string]float64
	MinTrustThreshold() float64
	UpdateTrust(agentID string, outcome *types.TaskOutcome) error
}

// RiskSource absorbs interaction observations and feeds per-agent risk
// factors. *risk.InteractionTracker satisfies it.
type RiskSource interface {
	Record(obs *risk.Observation)
	Snapshot() map[string]float64
}

// Publisher is the fire-and-forget event sink. *events.Bus satisfies it.
type Publisher interface {
	Publish(eventType events.EventType, payload any)
}

// Compressor shrinks handoff context. *compress.GzipCompressor satisfies it.
type Compressor interface {
	Compress(text string) ([]byte, error)
}
