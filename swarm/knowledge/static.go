package knowledge

import (
	"context"
	"sync"

	"github.com/quorvia/swarmroute/types"
)

// StaticProvider serves fixed evidence scores per agent, falling back to a
// default for agents without a pinned score. Scores are clamped to [0, 1].
type StaticProvider struct {
	mu           sync.RWMutex
	scores       map[string]float64
	defaultScore float64
}

// NewStaticProvider builds a provider from pinned scores. The map may be nil.
func NewStaticProvider(scores map[string]float64, defaultScore float64) *StaticProvider {
	pinned := make(map[string]float64, len(scores))
	for id, score := range scores {
		pinned[id] = clampScore(score)
	}
	return &StaticProvider{
		scores:       pinned,
		defaultScore: clampScore(defaultScore),
	}
}

// RetrieveEvidence returns the pinned score for agentID, or the default.
func (p *StaticProvider) RetrieveEvidence(ctx context.Context, agentID string, _ *types.Task) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if score, ok := p.scores[agentID]; ok {
		return score, nil
	}
	return p.defaultScore, nil
}

// SetScore pins or overwrites the score for an agent.
func (p *StaticProvider) SetScore(agentID string, score float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scores[agentID] = clampScore(score)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
