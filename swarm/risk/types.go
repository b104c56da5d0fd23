package risk

import (
	"time"
)

// Severity buckets an assessed risk. Buckets are ordered; OverallRiskLevel
// reports the highest bucket present.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for max comparisons.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// RiskType identifies a detected anomaly pattern.
type RiskType string

const (
	// RiskHandoffFailure fires when multiple handoffs in the window failed.
	RiskHandoffFailure RiskType = "handoff_failure"
	// RiskContextLoss fires when an interaction carried no context payload.
	RiskContextLoss RiskType = "context_loss"
	// RiskAgentConflict fires when the same ordered agent pair keeps flipping
	// between success and failure.
	RiskAgentConflict RiskType = "agent_conflict"
	// RiskDeadlock fires when the directed interaction graph contains a cycle.
	RiskDeadlock RiskType = "deadlock"
	// RiskUnexpectedInteraction fires when an interaction names an agent ID
	// that is not currently registered.
	RiskUnexpectedInteraction RiskType = "unexpected_interaction"
	// RiskCascadingFailure fires on a run of consecutive failures across the
	// whole chronology.
	RiskCascadingFailure RiskType = "cascading_failure"
	// RiskConsensusFailure fires when consensus-typed interactions fail too
	// often.
	RiskConsensusFailure RiskType = "consensus_failure"
	// RiskLatencyDegradation fires when average latency exceeds the budget.
	RiskLatencyDegradation RiskType = "latency_degradation"
	// RiskThroughputDegradation fires when the handoff success rate drops
	// under the floor.
	RiskThroughputDegradation RiskType = "throughput_degradation"
)

// InteractionType classifies an observed interaction.
type InteractionType string

const (
	InteractionHandoff   InteractionType = "handoff"
	InteractionConsensus InteractionType = "consensus"
	InteractionOther     InteractionType = "other"
)

// Observation is one recorded interaction outcome. SourceAgentID may be empty
// when the origin is the orchestrator itself rather than an agent; empty IDs
// are never counted against the registered set.
type Observation struct {
	SourceAgentID string          `json:"source_agent_id,omitempty"`
	TargetAgentID string          `json:"target_agent_id"`
	Type          InteractionType `json:"type"`
	Success       bool            `json:"success"`
	Context       map[string]any  `json:"context,omitempty"`
	LatencyMs     float64         `json:"latency_ms,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Clone returns a deep copy of the observation.
func (o *Observation) Clone() *Observation {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Context != nil {
		clone.Context = make(map[string]any, len(o.Context))
		for k, v := range o.Context {
			clone.Context[k] = v
		}
	}
	return &clone
}

// Risk is a single detected anomaly with a suggested mitigation.
type Risk struct {
	Type        RiskType  `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	AgentIDs    []string  `json:"agent_ids,omitempty"`
	Mitigation  string    `json:"mitigation"`
	DetectedAt  time.Time `json:"detected_at"`
}

// RiskAssessment groups detected risks by category. OverallRiskLevel is the
// maximum severity across every category, SeverityLow when nothing was
// detected.
type RiskAssessment struct {
	CoordinationRisks    []*Risk   `json:"coordination_risks"`
	BehavioralRisks      []*Risk   `json:"behavioral_risks"`
	PerformanceRisks     []*Risk   `json:"performance_risks"`
	OverallRiskLevel     Severity  `json:"overall_risk_level"`
	MitigationStrategies []string  `json:"mitigation_strategies"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// Empty reports whether the assessment detected no risks at all.
func (a *RiskAssessment) Empty() bool {
	return len(a.CoordinationRisks) == 0 &&
		len(a.BehavioralRisks) == 0 &&
		len(a.PerformanceRisks) == 0
}

// OrchestrationMetrics carries delegation-level numbers into an assessment.
// When nil, the tracker derives equivalents from its own windows.
type OrchestrationMetrics struct {
	HandoffSuccessRate float64 `json:"handoff_success_rate"`
	TotalHandoffs      int     `json:"total_handoffs"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}

// TrackerConfig bounds the observation windows and tunes detection
// thresholds.
type TrackerConfig struct {
	// WindowSize caps the per-agent observation window.
	WindowSize int `json:"window_size" yaml:"window_size"`
	// GlobalWindowSize caps the cross-agent chronology used by graph and
	// sequence detections.
	GlobalWindowSize int `json:"global_window_size" yaml:"global_window_size"`
	// FailedHandoffThreshold is the failed-handoff count that raises
	// handoff_failure.
	FailedHandoffThreshold int `json:"failed_handoff_threshold" yaml:"failed_handoff_threshold"`
	// ConsecutiveFailureThreshold is the failure-run length that raises
	// cascading_failure.
	ConsecutiveFailureThreshold int `json:"consecutive_failure_threshold" yaml:"consecutive_failure_threshold"`
	// ConsensusFailureRate is the failure ratio on consensus-typed
	// interactions that raises consensus_failure.
	ConsensusFailureRate float64 `json:"consensus_failure_rate" yaml:"consensus_failure_rate"`
	// MaxAverageLatencyMs is the latency budget; averages above it raise
	// latency_degradation.
	MaxAverageLatencyMs float64 `json:"max_average_latency_ms" yaml:"max_average_latency_ms"`
	// MinHandoffSuccessRate is the throughput floor; rates below it raise
	// throughput_degradation.
	MinHandoffSuccessRate float64 `json:"min_handoff_success_rate" yaml:"min_handoff_success_rate"`
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		WindowSize:                  50,
		GlobalWindowSize:            200,
		FailedHandoffThreshold:      2,
		ConsecutiveFailureThreshold: 3,
		ConsensusFailureRate:        0.4,
		MaxAverageLatencyMs:         2000,
		MinHandoffSuccessRate:       0.8,
	}
}

// observationSeverity maps one observation onto [0,1] for agent scoring.
// Successful interactions that carried context are clean; losing context
// costs a little; failures cost a lot, consensus failures most.
func observationSeverity(o *Observation) float64 {
	if o.Success {
		if len(o.Context) == 0 {
			return 0.25
		}
		return 0.0
	}
	if o.Type == InteractionConsensus {
		return 0.9
	}
	return 0.75
}

// maxSeverity returns the highest severity across the given risk slices,
// SeverityLow when all are empty.
func maxSeverity(groups ...[]*Risk) Severity {
	level := SeverityLow
	for _, group := range groups {
		for _, r := range group {
			if severityRank[r.Severity] > severityRank[level] {
				level = r.Severity
			}
		}
	}
	return level
}
