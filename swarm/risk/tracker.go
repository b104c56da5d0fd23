package risk

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/registry"
)

// Directory is the read-only registry view used to recognize interactions
// that name unknown agents.
type Directory interface {
	Get(agentID string) (*registry.Agent, bool)
}

// InteractionTracker records interaction outcomes and derives risk signals
// from them. All state lives in bounded in-memory windows.
type InteractionTracker struct {
	config    *TrackerConfig
	directory Directory
	logger    *zap.Logger

	mu       sync.RWMutex
	perAgent map[string][]*Observation
	global   []*Observation

	snapshotMu sync.RWMutex
	snapshot   map[string]float64
}

// NewInteractionTracker creates a tracker. The directory may be nil, in which
// case unexpected-interaction detection is disabled.
func NewInteractionTracker(config *TrackerConfig, directory Directory, logger *zap.Logger) *InteractionTracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InteractionTracker{
		config:    config,
		directory: directory,
		logger:    logger.With(zap.String("component", "risk_tracker")),
		perAgent:  make(map[string][]*Observation),
		global:    make([]*Observation, 0, config.GlobalWindowSize),
		snapshot:  make(map[string]float64),
	}
}

// Record appends an observation to the global chronology and to the windows
// of both named agents, then refreshes their snapshot scores. Nil
// observations are ignored.
func (t *InteractionTracker) Record(obs *Observation) {
	if obs == nil {
		return
	}
	obs = obs.Clone()
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}
	if obs.Type == "" {
		obs.Type = InteractionOther
	}

	t.mu.Lock()
	t.global = append(t.global, obs)
	if len(t.global) > t.config.GlobalWindowSize {
		t.global = t.global[len(t.global)-t.config.GlobalWindowSize:]
	}

	touched := make([]string, 0, 2)
	for _, id := range []string{obs.SourceAgentID, obs.TargetAgentID} {
		if id == "" {
			continue
		}
		window := append(t.perAgent[id], obs)
		if len(window) > t.config.WindowSize {
			window = window[len(window)-t.config.WindowSize:]
		}
		t.perAgent[id] = window
		touched = append(touched, id)
	}

	scores := make(map[string]float64, len(touched))
	for _, id := range touched {
		scores[id] = scoreWindow(t.perAgent[id])
	}
	t.mu.Unlock()

	t.snapshotMu.Lock()
	for id, score := range scores {
		t.snapshot[id] = score
	}
	t.snapshotMu.Unlock()

	t.logger.Debug("interaction recorded",
		zap.String("source", obs.SourceAgentID),
		zap.String("target", obs.TargetAgentID),
		zap.String("type", string(obs.Type)),
		zap.Bool("success", obs.Success))
}

// AgentScore returns the risk-derived score for an agent: 1.0 with no
// observations, otherwise max(0, 1 - averageSeverity) over its window.
func (t *InteractionTracker) AgentScore(agentID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return scoreWindow(t.perAgent[agentID])
}

// Snapshot returns a copy of the current per-agent risk scores. Agents with
// no observations are absent; callers treat absence as a score of 1.0.
func (t *InteractionTracker) Snapshot() map[string]float64 {
	t.snapshotMu.RLock()
	defer t.snapshotMu.RUnlock()

	out := make(map[string]float64, len(t.snapshot))
	for id, score := range t.snapshot {
		out[id] = score
	}
	return out
}

// WindowLen reports how many observations the global chronology currently
// holds.
func (t *InteractionTracker) WindowLen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.global)
}

// Assess walks the current windows and returns a categorized risk
// assessment. When metrics is nil the handoff success rate and average
// latency are derived from the recorded observations.
func (t *InteractionTracker) Assess(metrics *OrchestrationMetrics) *RiskAssessment {
	t.mu.RLock()
	window := make([]*Observation, len(t.global))
	copy(window, t.global)
	t.mu.RUnlock()

	if metrics == nil {
		metrics = deriveMetrics(window)
	}

	assessment := &RiskAssessment{
		CoordinationRisks: []*Risk{},
		BehavioralRisks:   []*Risk{},
		PerformanceRisks:  []*Risk{},
		GeneratedAt:       time.Now(),
	}

	if r := detectHandoffFailures(window, t.config.FailedHandoffThreshold); r != nil {
		assessment.CoordinationRisks = append(assessment.CoordinationRisks, r)
	}
	if r := detectDeadlock(window); r != nil {
		assessment.CoordinationRisks = append(assessment.CoordinationRisks, r)
	}
	if r := detectUnexpectedInteractions(window, t.directory); r != nil {
		assessment.CoordinationRisks = append(assessment.CoordinationRisks, r)
	}

	if r := detectContextLoss(window); r != nil {
		assessment.BehavioralRisks = append(assessment.BehavioralRisks, r)
	}
	assessment.BehavioralRisks = append(assessment.BehavioralRisks, detectAgentConflicts(window)...)
	if r := detectCascadingFailure(window, t.config.ConsecutiveFailureThreshold); r != nil {
		assessment.BehavioralRisks = append(assessment.BehavioralRisks, r)
	}
	if r := detectConsensusFailure(window, t.config.ConsensusFailureRate); r != nil {
		assessment.BehavioralRisks = append(assessment.BehavioralRisks, r)
	}

	if metrics.AverageLatencyMs > t.config.MaxAverageLatencyMs {
		assessment.PerformanceRisks = append(assessment.PerformanceRisks, &Risk{
			Type:     RiskLatencyDegradation,
			Severity: SeverityMedium,
			Description: fmt.Sprintf("average interaction latency %.0fms exceeds budget %.0fms",
				metrics.AverageLatencyMs, t.config.MaxAverageLatencyMs),
			Mitigation: "Scale out agent capacity or raise the latency budget",
			DetectedAt: time.Now(),
		})
	}
	if metrics.TotalHandoffs > 0 && metrics.HandoffSuccessRate < t.config.MinHandoffSuccessRate {
		assessment.PerformanceRisks = append(assessment.PerformanceRisks, &Risk{
			Type:     RiskThroughputDegradation,
			Severity: SeverityHigh,
			Description: fmt.Sprintf("handoff success rate %.0f%% is below floor %.0f%%",
				metrics.HandoffSuccessRate*100, t.config.MinHandoffSuccessRate*100),
			Mitigation: "Rebalance workload away from saturated agents",
			DetectedAt: time.Now(),
		})
	}

	assessment.OverallRiskLevel = maxSeverity(
		assessment.CoordinationRisks,
		assessment.BehavioralRisks,
		assessment.PerformanceRisks,
	)
	assessment.MitigationStrategies = collectMitigations(
		assessment.CoordinationRisks,
		assessment.BehavioralRisks,
		assessment.PerformanceRisks,
	)

	if !assessment.Empty() {
		t.logger.Info("risk assessment detected anomalies",
			zap.Int("coordination", len(assessment.CoordinationRisks)),
			zap.Int("behavioral", len(assessment.BehavioralRisks)),
			zap.Int("performance", len(assessment.PerformanceRisks)),
			zap.String("overall_level", string(assessment.OverallRiskLevel)))
	}
	return assessment
}

// scoreWindow computes max(0, 1 - averageSeverity) for a window, 1.0 when
// the window is empty.
func scoreWindow(window []*Observation) float64 {
	if len(window) == 0 {
		return 1.0
	}
	var total float64
	for _, obs := range window {
		total += observationSeverity(obs)
	}
	score := 1.0 - total/float64(len(window))
	if score < 0 {
		return 0
	}
	return score
}

// deriveMetrics reconstructs orchestration metrics from the chronology when
// the caller did not supply measured ones.
func deriveMetrics(window []*Observation) *OrchestrationMetrics {
	metrics := &OrchestrationMetrics{}
	var handoffOK int
	var latencyTotal float64
	var latencyCount int
	for _, obs := range window {
		if obs.Type == InteractionHandoff {
			metrics.TotalHandoffs++
			if obs.Success {
				handoffOK++
			}
		}
		if obs.LatencyMs > 0 {
			latencyTotal += obs.LatencyMs
			latencyCount++
		}
	}
	if metrics.TotalHandoffs > 0 {
		metrics.HandoffSuccessRate = float64(handoffOK) / float64(metrics.TotalHandoffs)
	}
	if latencyCount > 0 {
		metrics.AverageLatencyMs = latencyTotal / float64(latencyCount)
	}
	return metrics
}

// collectMitigations gathers unique mitigation strings in detection order.
func collectMitigations(groups ...[]*Risk) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, group := range groups {
		for _, r := range group {
			if r.Mitigation == "" || seen[r.Mitigation] {
				continue
			}
			seen[r.Mitigation] = true
			out = append(out, r.Mitigation)
		}
	}
	return out
}
