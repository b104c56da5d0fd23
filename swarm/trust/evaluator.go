package trust

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/types"
)

// EvidenceProvider supplies an external trust signal for an agent, usually
// from a knowledge-retrieval backend. Implementations return a score on
// [0,1].
type EvidenceProvider interface {
	RetrieveEvidence(ctx context.Context, agentID string, task *types.Task) (float64, error)
}

// agentHistory is the bounded outcome record for one agent.
type agentHistory struct {
	outcomes  []*types.TaskOutcome
	score     float64
	updatedAt time.Time
}

// TrustEvaluator computes composite trust evaluations and maintains the
// per-agent trust scores consumed by the task scorer.
type TrustEvaluator struct {
	config   *EvaluatorConfig
	evidence EvidenceProvider
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	histories map[string]*agentHistory

	snapshotMu sync.RWMutex
	snapshot   map[string]snapshotEntry
}

type snapshotEntry struct {
	score     float64
	updatedAt time.Time
}

// NewTrustEvaluator creates an evaluator. The evidence provider may be nil,
// in which case the evidence component is skipped and the remaining weights
// renormalize.
func NewTrustEvaluator(config *EvaluatorConfig, evidence EvidenceProvider, logger *zap.Logger) *TrustEvaluator {
	if config == nil {
		config = DefaultEvaluatorConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &TrustEvaluator{
		config:    config,
		evidence:  evidence,
		logger:    logger.With(zap.String("component", "trust_evaluator")),
		now:       now,
		histories: make(map[string]*agentHistory),
		snapshot:  make(map[string]snapshotEntry),
	}
}

// UpdateTrust appends an outcome to the agent's bounded history and
// recomputes its stored trust score as a recency-weighted average.
func (e *TrustEvaluator) UpdateTrust(agentID string, outcome *types.TaskOutcome) error {
	if agentID == "" {
		return types.NewError(types.ErrInvalidRequest, "agent ID is required")
	}
	if outcome == nil {
		return types.NewError(types.ErrInvalidRequest, "outcome is required")
	}

	e.mu.Lock()
	hist := e.histories[agentID]
	if hist == nil {
		hist = &agentHistory{}
		e.histories[agentID] = hist
	}
	hist.outcomes = append(hist.outcomes, outcome)
	if len(hist.outcomes) > e.config.HistorySize {
		hist.outcomes = hist.outcomes[len(hist.outcomes)-e.config.HistorySize:]
	}
	hist.score = recencyWeightedScore(hist.outcomes)
	hist.updatedAt = e.now()
	score, updatedAt := hist.score, hist.updatedAt
	n := len(hist.outcomes)
	e.mu.Unlock()

	e.snapshotMu.Lock()
	e.snapshot[agentID] = snapshotEntry{score: score, updatedAt: updatedAt}
	e.snapshotMu.Unlock()

	e.logger.Debug("trust updated",
		zap.String("agent_id", agentID),
		zap.Bool("success", outcome.Success),
		zap.Float64("trust_score", score),
		zap.Int("history_len", n))
	return nil
}

// TrustScore returns the agent's decayed trust score. The second return is
// false when the agent has no recorded history.
func (e *TrustEvaluator) TrustScore(agentID string) (float64, bool) {
	e.snapshotMu.RLock()
	entry, ok := e.snapshot[agentID]
	e.snapshotMu.RUnlock()
	if !ok {
		return 0, false
	}
	return e.decayed(entry.score, entry.updatedAt), true
}

// Snapshot returns a copy of all decayed per-agent trust scores. The task
// scorer reads this once per routing pass; agents absent from the map have
// no history.
func (e *TrustEvaluator) Snapshot() map[string]float64 {
	e.snapshotMu.RLock()
	defer e.snapshotMu.RUnlock()

	out := make(map[string]float64, len(e.snapshot))
	for id, entry := range e.snapshot {
		out[id] = e.decayed(entry.score, entry.updatedAt)
	}
	return out
}

// MinTrustThreshold exposes the distrust cutoff so routing callers can
// exclude distrust-recommended agents with the same boundary this
// evaluator uses.
func (e *TrustEvaluator) MinTrustThreshold() float64 {
	return e.config.MinTrustThreshold
}

// HistoryLen reports how many outcomes are recorded for an agent.
func (e *TrustEvaluator) HistoryLen(agentID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if hist := e.histories[agentID]; hist != nil {
		return len(hist.outcomes)
	}
	return 0
}

// Evaluate produces a trust evaluation of one agent for one task. Agents
// without history get a zero-shot capability-only evaluation. An evidence
// lookup failure is logged and skipped, never surfaced.
func (e *TrustEvaluator) Evaluate(ctx context.Context, agent *registry.Agent, task *types.Task) (*TrustEvaluation, error) {
	if agent == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "agent is required")
	}

	capability := 0.0
	if task != nil {
		capability = agent.ExpertiseMatch(task.Description)
	}

	e.mu.RLock()
	hist := e.histories[agent.ID]
	var historyLen int
	var historyScore float64
	var consistency float64
	hasConsistency := false
	if hist != nil {
		historyLen = len(hist.outcomes)
		historyScore = e.decayed(hist.score, hist.updatedAt)
		if historyLen >= 2 {
			consistency = consistencyScore(hist.outcomes)
			hasConsistency = true
		}
	}
	e.mu.RUnlock()

	if historyLen == 0 {
		eval := &TrustEvaluation{
			AgentID:     agent.ID,
			TrustScore:  capability,
			Confidence:  e.confidence(0),
			Reasoning:   fmt.Sprintf("zero-shot evaluation: no recorded outcomes, capability match %.2f", capability),
			ZeroShot:    true,
			EvaluatedAt: e.now(),
		}
		eval.Recommendation = e.recommend(eval.TrustScore)
		return eval, nil
	}

	weighted := capability*weightCapability + historyScore*weightHistory
	weightSum := weightCapability + weightHistory
	detail := fmt.Sprintf("capability %.2f, history %.2f over %d outcomes", capability, historyScore, historyLen)

	if e.evidence != nil {
		evidenceCtx, cancel := context.WithTimeout(ctx, e.config.EvidenceTimeout)
		evidenceScore, err := e.evidence.RetrieveEvidence(evidenceCtx, agent.ID, task)
		cancel()
		if err != nil {
			e.logger.Warn("evidence lookup failed, evaluating without it",
				zap.String("agent_id", agent.ID),
				zap.Error(err))
		} else {
			weighted += clamp01(evidenceScore) * weightEvidence
			weightSum += weightEvidence
			detail += fmt.Sprintf(", evidence %.2f", clamp01(evidenceScore))
		}
	}
	if hasConsistency {
		weighted += consistency * weightConsistency
		weightSum += weightConsistency
		detail += fmt.Sprintf(", consistency %.2f", consistency)
	}

	eval := &TrustEvaluation{
		AgentID:     agent.ID,
		TrustScore:  weighted / weightSum,
		Confidence:  e.confidence(historyLen),
		Reasoning:   "composite of " + detail,
		EvaluatedAt: e.now(),
	}
	eval.Recommendation = e.recommend(eval.TrustScore)
	return eval, nil
}

// recommend maps a score onto the trust / cautious / distrust verdict.
func (e *TrustEvaluator) recommend(score float64) Recommendation {
	switch {
	case score >= e.config.ConfidenceThreshold:
		return RecommendationTrust
	case score < e.config.MinTrustThreshold:
		return RecommendationDistrust
	default:
		return RecommendationCautious
	}
}

// confidence scales with the amount of recorded evidence: 0.3 baseline,
// full confidence once ten outcomes are on record.
func (e *TrustEvaluator) confidence(historyLen int) float64 {
	fill := float64(historyLen) / 10.0
	if fill > 1 {
		fill = 1
	}
	return 0.3 + 0.7*fill
}

// decayed erodes a stored score by TrustDecayRate per hour since its last
// update, floored at zero.
func (e *TrustEvaluator) decayed(score float64, updatedAt time.Time) float64 {
	hours := e.now().Sub(updatedAt).Hours()
	if hours <= 0 {
		return score
	}
	decayedScore := score * (1 - e.config.TrustDecayRate*hours)
	if decayedScore < 0 {
		return 0
	}
	return decayedScore
}

// recencyWeightedScore averages outcome scores with linearly increasing
// weight toward the newest entry.
func recencyWeightedScore(outcomes []*types.TaskOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var weighted, weightSum float64
	for i, outcome := range outcomes {
		w := float64(i + 1)
		weighted += outcome.Score() * w
		weightSum += w
	}
	return weighted / weightSum
}

// consistencyScore inverts the spread of outcome scores: tight histories
// score near 1, erratic ones near 0.
func consistencyScore(outcomes []*types.TaskOutcome) float64 {
	n := float64(len(outcomes))
	var sum float64
	for _, outcome := range outcomes {
		sum += outcome.Score()
	}
	mean := sum / n

	var variance float64
	for _, outcome := range outcomes {
		d := outcome.Score() - mean
		variance += d * d
	}
	variance /= n

	return clamp01(1 - 2*math.Sqrt(variance))
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
