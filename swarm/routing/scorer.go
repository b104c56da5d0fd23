package routing

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/types"
)

// TaskScorer ranks agents for tasks. All scoring happens synchronously on
// the calling goroutine against the supplied pool and score maps.
type TaskScorer struct {
	cache  *DecisionCache
	logger *zap.Logger
}

// NewTaskScorer creates a scorer backed by the given decision cache. A nil
// cache disables decision stickiness.
func NewTaskScorer(cache *DecisionCache, logger *zap.Logger) *TaskScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskScorer{
		cache:  cache,
		logger: logger.With(zap.String("component", "task_scorer")),
	}
}

// scoredAgent is one ranked candidate with its score components.
type scoredAgent struct {
	agent          *registry.Agent
	score          float64
	expertise      float64
	workloadFactor float64
	riskFactor     float64
	trustScore     float64
}

// Route picks an agent for the task.
//
// A fresh cached decision for the same task is replayed as long as that
// agent still has spare capacity. A non-nil trust view switches to the
// trust-aware formula with distrusted agents excluded up front; any trust
// dead end falls back to the standard formula transparently. riskScores
// carries per-agent risk-derived scores, missing agents default to 1.0.
func (s *TaskScorer) Route(task *types.Task, agents []*registry.Agent, trust *TrustInfo, riskScores map[string]float64) (*RoutingDecision, error) {
	pool := make([]*registry.Agent, 0, len(agents))
	for _, agent := range agents {
		if agent != nil {
			pool = append(pool, agent)
		}
	}
	if len(pool) == 0 {
		return nil, types.NewError(types.ErrNoAgentsAvailable, "no agents available for routing")
	}

	var taskID, description string
	if task != nil {
		taskID = task.ID
		description = task.Description
	}

	if decision := s.cachedDecision(taskID, pool); decision != nil {
		return decision, nil
	}

	if trust != nil {
		if decision := s.routeTrustAware(taskID, description, pool, trust); decision != nil {
			return decision, nil
		}
		s.logger.Debug("trust-aware routing found no eligible agent, using standard scoring",
			zap.String("task_id", taskID))
	}

	return s.routeStandard(taskID, description, pool, riskScores), nil
}

// cachedDecision replays a recent decision when the remembered agent is
// still in the pool with spare capacity.
func (s *TaskScorer) cachedDecision(taskID string, pool []*registry.Agent) *RoutingDecision {
	if s.cache == nil || taskID == "" {
		return nil
	}
	entry, ok := s.cache.Get(taskID)
	if !ok {
		return nil
	}
	for _, agent := range pool {
		if agent.ID != entry.AgentID {
			continue
		}
		if !agent.HasSpareCapacity() {
			return nil
		}
		s.logger.Debug("replaying cached routing decision",
			zap.String("task_id", taskID),
			zap.String("agent_id", agent.ID))
		return &RoutingDecision{
			TaskID:     taskID,
			AgentID:    agent.ID,
			AgentType:  agent.Type,
			Score:      0.9,
			Confidence: 0.9,
			Reasoning:  ReasoningCachedDecision,
			FromCache:  true,
			DecidedAt:  time.Now(),
		}
	}
	return nil
}

// routeTrustAware ranks with the trust-aware formula. It returns nil when
// no agent survives the distrust and capacity exclusions, signalling the
// caller to fall back.
func (s *TaskScorer) routeTrustAware(taskID, description string, pool []*registry.Agent, trust *TrustInfo) *RoutingDecision {
	candidates := make([]scoredAgent, 0, len(pool))
	for _, agent := range pool {
		if !agent.HasSpareCapacity() {
			continue
		}
		expertise := agent.ExpertiseMatch(description)
		trustScore, hasHistory := trust.Scores[agent.ID]
		if !hasHistory {
			// Zero-shot: capability alone stands in for trust.
			trustScore = expertise
		}
		if trustScore < trust.MinTrustThreshold {
			continue
		}
		workloadFactor := agent.WorkloadFactor()
		candidates = append(candidates, scoredAgent{
			agent:          agent,
			score:          trustWeightExpertise*expertise + trustWeightTrust*trustScore + trustWeightWorkload*workloadFactor,
			expertise:      expertise,
			workloadFactor: workloadFactor,
			trustScore:     trustScore,
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	best := pickBest(candidates, description)
	s.record(taskID, best.agent.ID)

	decision := &RoutingDecision{
		TaskID:     taskID,
		AgentID:    best.agent.ID,
		AgentType:  best.agent.Type,
		Score:      best.score,
		Confidence: confidenceFrom(best.score),
		Reasoning: fmt.Sprintf("Selected %s with trust-aware score %.2f (expertise %.2f, trust %.2f, workload factor %.2f)",
			best.agent.ID, best.score, best.expertise, best.trustScore, best.workloadFactor),
		TrustAware: true,
		DecidedAt:  time.Now(),
	}
	s.logger.Debug("trust-aware routing decision",
		zap.String("task_id", taskID),
		zap.String("agent_id", decision.AgentID),
		zap.Float64("score", decision.Score))
	return decision
}

// routeStandard ranks with the non-trust formula, falling back to the
// globally least-loaded agent when everyone is at capacity.
func (s *TaskScorer) routeStandard(taskID, description string, pool []*registry.Agent, riskScores map[string]float64) *RoutingDecision {
	candidates := make([]scoredAgent, 0, len(pool))
	for _, agent := range pool {
		if !agent.HasSpareCapacity() {
			continue
		}
		expertise := agent.ExpertiseMatch(description)
		workloadFactor := agent.WorkloadFactor()
		riskFactor := 1.0
		if score, ok := riskScores[agent.ID]; ok {
			riskFactor = clampUnit(score)
		}
		candidates = append(candidates, scoredAgent{
			agent:          agent,
			score:          weightExpertise*expertise + weightWorkload*workloadFactor + weightRisk*riskFactor,
			expertise:      expertise,
			workloadFactor: workloadFactor,
			riskFactor:     riskFactor,
		})
	}
	if len(candidates) == 0 {
		return s.leastLoaded(taskID, pool)
	}

	best := pickBest(candidates, description)
	s.record(taskID, best.agent.ID)

	decision := &RoutingDecision{
		TaskID:     taskID,
		AgentID:    best.agent.ID,
		AgentType:  best.agent.Type,
		Score:      best.score,
		Confidence: confidenceFrom(best.score),
		Reasoning: fmt.Sprintf("Selected %s with score %.2f (expertise %.2f, workload factor %.2f, risk factor %.2f)",
			best.agent.ID, best.score, best.expertise, best.workloadFactor, best.riskFactor),
		DecidedAt: time.Now(),
	}
	s.logger.Debug("routing decision",
		zap.String("task_id", taskID),
		zap.String("agent_id", decision.AgentID),
		zap.Float64("score", decision.Score))
	return decision
}

// leastLoaded picks the agent with the globally lowest workload, capacity
// notwithstanding. The decision is not cached: the pick is a pressure
// valve, not a preference.
func (s *TaskScorer) leastLoaded(taskID string, pool []*registry.Agent) *RoutingDecision {
	best := pool[0]
	for _, agent := range pool[1:] {
		if agent.Workload < best.Workload {
			best = agent
		}
	}
	s.logger.Info("all agents at capacity, selecting least loaded",
		zap.String("task_id", taskID),
		zap.String("agent_id", best.ID),
		zap.Int("workload", best.Workload))
	return &RoutingDecision{
		TaskID:     taskID,
		AgentID:    best.ID,
		AgentType:  best.Type,
		Score:      0.3,
		Confidence: 0.3,
		Reasoning:  ReasoningAllAtCapacity,
		DecidedAt:  time.Now(),
	}
}

// pickBest returns the highest-scoring candidate. Ties prefer a reviewer
// for review tasks, then a coder for code tasks, then the earliest
// candidate in scan order.
func pickBest(candidates []scoredAgent, description string) *scoredAgent {
	best := []*scoredAgent{&candidates[0]}
	maxScore := candidates[0].score
	for i := 1; i < len(candidates); i++ {
		c := &candidates[i]
		switch {
		case c.score > maxScore:
			maxScore = c.score
			best = append(best[:0], c)
		case c.score == maxScore:
			best = append(best, c)
		}
	}
	if len(best) == 1 {
		return best[0]
	}

	lower := strings.ToLower(description)
	if strings.Contains(lower, "review") {
		for _, c := range best {
			if c.agent.Type == registry.AgentTypeReviewer {
				return c
			}
		}
	} else if strings.Contains(lower, "code") {
		for _, c := range best {
			if c.agent.Type == registry.AgentTypeCoder {
				return c
			}
		}
	}
	return best[0]
}

// record stores the winning pair in the cache.
func (s *TaskScorer) record(taskID, agentID string) {
	if s.cache != nil {
		s.cache.Put(taskID, agentID)
	}
}

// confidenceFrom caps a score at 1 for reporting.
func confidenceFrom(score float64) float64 {
	if score > 1 {
		return 1
	}
	return score
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
