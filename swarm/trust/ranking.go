package trust

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/types"
)

// RankAgentsByTrust evaluates all agents concurrently with a bounded
// fan-out and returns them ordered by descending trust score. Ties keep
// the input order. A failed evaluation degrades that agent to a zero-shot
// capability estimate instead of failing the whole ranking; only context
// cancellation aborts it.
func (e *TrustEvaluator) RankAgentsByTrust(ctx context.Context, agents []*registry.Agent, task *types.Task) ([]*TrustRanking, error) {
	if len(agents) == 0 {
		return []*TrustRanking{}, nil
	}

	results := make([]*TrustRanking, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxConcurrentEvaluations)

	for i, agent := range agents {
		if agent == nil {
			continue
		}
		i, agent := i, agent
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			eval, err := e.Evaluate(gctx, agent, task)
			if err != nil {
				e.logger.Warn("trust evaluation failed, degrading to capability match",
					zap.String("agent_id", agent.ID),
					zap.Error(err))
				capability := 0.0
				if task != nil {
					capability = agent.ExpertiseMatch(task.Description)
				}
				eval = &TrustEvaluation{
					AgentID:     agent.ID,
					TrustScore:  capability,
					Confidence:  e.confidence(0),
					Reasoning:   "degraded evaluation: capability match only",
					ZeroShot:    true,
					EvaluatedAt: e.now(),
				}
				eval.Recommendation = e.recommend(eval.TrustScore)
			}
			results[i] = &TrustRanking{Agent: agent, Evaluation: eval}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]*TrustRanking, 0, len(results))
	for _, r := range results {
		if r != nil {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Evaluation.TrustScore > ranked[b].Evaluation.TrustScore
	})
	return ranked, nil
}
