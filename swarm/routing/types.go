package routing

import (
	"time"

	"github.com/quorvia/swarmroute/swarm/registry"
)

// Reasoning strings attached to special-cased decisions. Kept stable so
// operators can alert on them.
const (
	// ReasoningCachedDecision marks a decision replayed from the cache.
	ReasoningCachedDecision = "Using recent routing decision"
	// ReasoningAllAtCapacity marks the least-loaded fallback taken when no
	// agent has spare capacity.
	ReasoningAllAtCapacity = "All agents at capacity, selecting least loaded agent"
)

// Score weights for the two ranking formulas.
const (
	weightExpertise = 0.7
	weightWorkload  = 0.2
	weightRisk      = 0.1

	trustWeightExpertise = 0.5
	trustWeightTrust     = 0.3
	trustWeightWorkload  = 0.2
)

// RoutingDecision is the scorer's answer for one task.
type RoutingDecision struct {
	TaskID     string             `json:"task_id"`
	AgentID    string             `json:"agent_id"`
	AgentType  registry.AgentType `json:"agent_type"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
	TrustAware bool               `json:"trust_aware"`
	FromCache  bool               `json:"from_cache"`
	DecidedAt  time.Time          `json:"decided_at"`
}

// TrustInfo is the point-in-time trust view consumed during a ranking
// pass. Scores holds decayed per-agent trust; agents absent from the map
// have no recorded history and are treated as zero-shot. Agents whose
// effective trust falls under MinTrustThreshold are excluded from
// trust-aware ranking.
type TrustInfo struct {
	Scores            map[string]float64
	MinTrustThreshold float64
}
