package mocks

import (
	"context"
	"sync"

	"github.com/quorvia/swarmroute/swarm/trust"
	"github.com/quorvia/swarmroute/types"
)

// Evidence is a configurable trust.EvidenceProvider with per-agent
// scores, a default score, and error injection.
type Evidence struct {
	mu sync.Mutex

	scores       map[string]float64
	defaultScore float64
	err          error
	calls        int
}

// NewEvidence creates a provider that answers 0.5 for every agent.
func NewEvidence() *Evidence {
	return &Evidence{
		scores:       make(map[string]float64),
		defaultScore: 0.5,
	}
}

// WithScore fixes the evidence score for one agent.
func (m *Evidence) WithScore(agentID string, score float64) *Evidence {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[agentID] = score
	return m
}

// WithDefault sets the score returned for agents without a fixed one.
func (m *Evidence) WithDefault(score float64) *Evidence {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultScore = score
	return m
}

// WithError makes every retrieval fail with err.
func (m *Evidence) WithError(err error) *Evidence {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// RetrieveEvidence implements trust.EvidenceProvider.
func (m *Evidence) RetrieveEvidence(ctx context.Context, agentID string, task *types.Task) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	if score, ok := m.scores[agentID]; ok {
		return score, nil
	}
	return m.defaultScore, nil
}

// CallCount returns how many retrievals were made.
func (m *Evidence) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ trust.EvidenceProvider = (*Evidence)(nil)
