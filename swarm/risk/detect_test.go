package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/registry"
)

func obs(src, dst string, typ InteractionType, success bool, ctx map[string]any) *Observation {
	return &Observation{
		SourceAgentID: src,
		TargetAgentID: dst,
		Type:          typ,
		Success:       success,
		Context:       ctx,
	}
}

func taskCtx() map[string]any {
	return map[string]any{"task_id": "t1"}
}

func TestDetectHandoffFailures(t *testing.T) {
	t.Run("below threshold", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionHandoff, false, taskCtx()),
			obs("a", "b", InteractionHandoff, true, taskCtx()),
		}
		assert.Nil(t, detectHandoffFailures(window, 2))
	})

	t.Run("at threshold", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionHandoff, false, taskCtx()),
			obs("c", "b", InteractionHandoff, false, taskCtx()),
		}
		risk := detectHandoffFailures(window, 2)
		require.NotNil(t, risk)
		assert.Equal(t, RiskHandoffFailure, risk.Type)
		assert.Equal(t, SeverityHigh, risk.Severity)
		assert.Equal(t, []string{"a", "b", "c"}, risk.AgentIDs)
	})

	t.Run("non-handoff failures ignored", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionConsensus, false, taskCtx()),
			obs("a", "b", InteractionOther, false, taskCtx()),
		}
		assert.Nil(t, detectHandoffFailures(window, 2))
	})
}

func TestDetectContextLoss(t *testing.T) {
	t.Run("all interactions carry context", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionHandoff, true, taskCtx()),
		}
		assert.Nil(t, detectContextLoss(window))
	})

	t.Run("empty context flagged", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionHandoff, true, nil),
			obs("b", "c", InteractionHandoff, true, map[string]any{}),
			obs("c", "d", InteractionHandoff, true, taskCtx()),
		}
		risk := detectContextLoss(window)
		require.NotNil(t, risk)
		assert.Equal(t, RiskContextLoss, risk.Type)
		assert.Contains(t, risk.Description, "2 interactions")
		assert.Equal(t, []string{"b", "c"}, risk.AgentIDs)
	})
}

func TestDetectAgentConflicts(t *testing.T) {
	t.Run("single flip is not a conflict", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionOther, true, taskCtx()),
			obs("a", "b", InteractionOther, false, taskCtx()),
		}
		assert.Empty(t, detectAgentConflicts(window))
	})

	t.Run("repeated flips are a conflict", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionOther, true, taskCtx()),
			obs("a", "b", InteractionOther, false, taskCtx()),
			obs("a", "b", InteractionOther, true, taskCtx()),
		}
		risks := detectAgentConflicts(window)
		require.Len(t, risks, 1)
		assert.Equal(t, RiskAgentConflict, risks[0].Type)
		assert.Equal(t, []string{"a", "b"}, risks[0].AgentIDs)
	})

	t.Run("pairs are ordered", func(t *testing.T) {
		// a->b flips twice, b->a stays stable: only one conflict.
		window := []*Observation{
			obs("a", "b", InteractionOther, true, taskCtx()),
			obs("b", "a", InteractionOther, true, taskCtx()),
			obs("a", "b", InteractionOther, false, taskCtx()),
			obs("b", "a", InteractionOther, true, taskCtx()),
			obs("a", "b", InteractionOther, true, taskCtx()),
		}
		risks := detectAgentConflicts(window)
		require.Len(t, risks, 1)
		assert.Contains(t, risks[0].Description, "between a and b")
	})
}

func TestDetectDeadlock(t *testing.T) {
	t.Run("chain has no cycle", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionHandoff, true, taskCtx()),
			obs("b", "c", InteractionHandoff, true, taskCtx()),
		}
		assert.Nil(t, detectDeadlock(window))
	})

	t.Run("cycle detected", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionHandoff, true, taskCtx()),
			obs("b", "c", InteractionHandoff, true, taskCtx()),
			obs("c", "a", InteractionHandoff, true, taskCtx()),
		}
		risk := detectDeadlock(window)
		require.NotNil(t, risk)
		assert.Equal(t, RiskDeadlock, risk.Type)
		assert.Equal(t, SeverityCritical, risk.Severity)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, risk.AgentIDs)
	})

	t.Run("two-node cycle detected", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionHandoff, true, taskCtx()),
			obs("b", "a", InteractionHandoff, true, taskCtx()),
		}
		require.NotNil(t, detectDeadlock(window))
	})

	t.Run("self interaction is not a cycle", func(t *testing.T) {
		window := []*Observation{
			obs("a", "a", InteractionHandoff, true, taskCtx()),
		}
		assert.Nil(t, detectDeadlock(window))
	})
}

func TestDetectUnexpectedInteractions(t *testing.T) {
	config := registry.DefaultRegistryConfig()
	config.EnableHealthCheck = false
	reg := registry.NewAgentRegistry(config, zap.NewNop())
	require.NoError(t, reg.Register(&registry.Agent{ID: "known", Capacity: 1}))

	t.Run("registered agents pass", func(t *testing.T) {
		window := []*Observation{obs("known", "known", InteractionOther, true, taskCtx())}
		assert.Nil(t, detectUnexpectedInteractions(window, reg))
	})

	t.Run("unknown agent flagged", func(t *testing.T) {
		window := []*Observation{obs("known", "ghost", InteractionOther, true, taskCtx())}
		risk := detectUnexpectedInteractions(window, reg)
		require.NotNil(t, risk)
		assert.Equal(t, RiskUnexpectedInteraction, risk.Type)
		assert.Equal(t, []string{"ghost"}, risk.AgentIDs)
	})

	t.Run("empty source skipped", func(t *testing.T) {
		window := []*Observation{obs("", "known", InteractionOther, true, taskCtx())}
		assert.Nil(t, detectUnexpectedInteractions(window, reg))
	})

	t.Run("nil directory disables detection", func(t *testing.T) {
		window := []*Observation{obs("ghost", "phantom", InteractionOther, true, taskCtx())}
		assert.Nil(t, detectUnexpectedInteractions(window, nil))
	})
}

func TestDetectCascadingFailure(t *testing.T) {
	t.Run("interrupted runs do not trigger", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionOther, false, taskCtx()),
			obs("b", "c", InteractionOther, false, taskCtx()),
			obs("c", "d", InteractionOther, true, taskCtx()),
			obs("d", "e", InteractionOther, false, taskCtx()),
		}
		assert.Nil(t, detectCascadingFailure(window, 3))
	})

	t.Run("three consecutive failures trigger", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionOther, false, taskCtx()),
			obs("b", "c", InteractionOther, false, taskCtx()),
			obs("c", "d", InteractionOther, false, taskCtx()),
		}
		risk := detectCascadingFailure(window, 3)
		require.NotNil(t, risk)
		assert.Equal(t, RiskCascadingFailure, risk.Type)
		assert.Equal(t, SeverityCritical, risk.Severity)
		assert.Contains(t, risk.Description, "3 consecutive")
	})
}

func TestDetectConsensusFailure(t *testing.T) {
	t.Run("no consensus interactions", func(t *testing.T) {
		window := []*Observation{obs("a", "b", InteractionHandoff, false, taskCtx())}
		assert.Nil(t, detectConsensusFailure(window, 0.4))
	})

	t.Run("rate below threshold", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionConsensus, true, taskCtx()),
			obs("a", "b", InteractionConsensus, true, taskCtx()),
			obs("a", "b", InteractionConsensus, false, taskCtx()),
		}
		assert.Nil(t, detectConsensusFailure(window, 0.4))
	})

	t.Run("rate at threshold triggers", func(t *testing.T) {
		window := []*Observation{
			obs("a", "b", InteractionConsensus, true, taskCtx()),
			obs("a", "b", InteractionConsensus, true, taskCtx()),
			obs("a", "b", InteractionConsensus, false, taskCtx()),
			obs("c", "d", InteractionConsensus, false, taskCtx()),
			obs("c", "d", InteractionConsensus, false, taskCtx()),
		}
		risk := detectConsensusFailure(window, 0.4)
		require.NotNil(t, risk)
		assert.Equal(t, RiskConsensusFailure, risk.Type)
		assert.Equal(t, []string{"a", "b", "c", "d"}, risk.AgentIDs)
	})
}
