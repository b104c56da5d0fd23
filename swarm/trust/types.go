package trust

import (
	"time"

	"github.com/quorvia/swarmroute/swarm/registry"
)

// Recommendation is the evaluator's verdict on delegating to an agent.
type Recommendation string

const (
	// RecommendationTrust means the score cleared the confidence threshold.
	RecommendationTrust Recommendation = "trust"
	// RecommendationCautious means the score sits between the thresholds.
	RecommendationCautious Recommendation = "cautious"
	// RecommendationDistrust means the score fell under the minimum
	// threshold; scoring excludes such agents from trust-aware ranking.
	RecommendationDistrust Recommendation = "distrust"
)

// TrustEvaluation is the result of evaluating one agent for one task.
type TrustEvaluation struct {
	AgentID        string         `json:"agent_id"`
	TrustScore     float64        `json:"trust_score"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
	ZeroShot       bool           `json:"zero_shot"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}

// TrustRanking pairs an agent with its evaluation, ordered best first.
type TrustRanking struct {
	Agent      *registry.Agent  `json:"agent"`
	Evaluation *TrustEvaluation `json:"evaluation"`
}

// EvaluatorConfig tunes history bounds, thresholds, and decay.
type EvaluatorConfig struct {
	// HistorySize caps the per-agent outcome history; the oldest entry is
	// dropped on overflow.
	HistorySize int `json:"history_size" yaml:"history_size"`
	// ConfidenceThreshold is the score at or above which the
	// recommendation becomes trust.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// MinTrustThreshold is the score under which the recommendation
	// becomes distrust.
	MinTrustThreshold float64 `json:"min_trust_threshold" yaml:"min_trust_threshold"`
	// TrustDecayRate is the per-hour decay multiplier applied at read time
	// since the last update.
	TrustDecayRate float64 `json:"trust_decay_rate" yaml:"trust_decay_rate"`
	// MaxConcurrentEvaluations bounds the ranking fan-out.
	MaxConcurrentEvaluations int `json:"max_concurrent_evaluations" yaml:"max_concurrent_evaluations"`
	// EvidenceTimeout bounds a single external evidence lookup.
	EvidenceTimeout time.Duration `json:"evidence_timeout" yaml:"evidence_timeout"`
	// Now overrides the clock, for tests.
	Now func() time.Time `json:"-" yaml:"-"`
}

// DefaultEvaluatorConfig returns the default evaluator configuration.
func DefaultEvaluatorConfig() *EvaluatorConfig {
	return &EvaluatorConfig{
		HistorySize:              100,
		ConfidenceThreshold:      0.7,
		MinTrustThreshold:        0.3,
		TrustDecayRate:           0.01,
		MaxConcurrentEvaluations: 8,
		EvidenceTimeout:          2 * time.Second,
	}
}

// Component weights for the composite score. When a component is missing
// (no evidence provider, too little history for consistency) the remaining
// weights renormalize so the score stays on [0,1].
const (
	weightCapability  = 0.3
	weightHistory     = 0.3
	weightEvidence    = 0.2
	weightConsistency = 0.2
)
