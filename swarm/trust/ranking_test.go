package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/types"
)

func TestRankAgentsByTrust_OrdersByScore(t *testing.T) {
	e := NewTrustEvaluator(nil, nil, zap.NewNop())
	task := &types.Task{ID: "t1", Description: "ship the go release"}

	proven := &registry.Agent{ID: "proven", Capacity: 1, Expertise: []string{"go"}}
	shaky := &registry.Agent{ID: "shaky", Capacity: 1, Expertise: []string{"go"}}
	fresh := &registry.Agent{ID: "fresh", Capacity: 1, Expertise: []string{"go"}}

	for i := 0; i < 5; i++ {
		require.NoError(t, e.UpdateTrust("proven", successOutcome("t")))
		require.NoError(t, e.UpdateTrust("shaky", failureOutcome("t")))
	}

	ranked, err := e.RankAgentsByTrust(context.Background(), []*registry.Agent{shaky, fresh, proven}, task)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	// fresh and proven both score 1.0; fresh keeps its earlier input slot.
	assert.Equal(t, "fresh", ranked[0].Agent.ID)
	assert.Equal(t, "proven", ranked[1].Agent.ID)
	assert.Equal(t, "shaky", ranked[2].Agent.ID)
	assert.True(t, ranked[0].Evaluation.TrustScore >= ranked[1].Evaluation.TrustScore)
	assert.True(t, ranked[1].Evaluation.TrustScore >= ranked[2].Evaluation.TrustScore)
}

func TestRankAgentsByTrust_TiesKeepInputOrder(t *testing.T) {
	e := NewTrustEvaluator(nil, nil, zap.NewNop())
	task := &types.Task{ID: "t1", Description: "triage the queue"}

	agents := []*registry.Agent{
		{ID: "first", Capacity: 1},
		{ID: "second", Capacity: 1},
		{ID: "third", Capacity: 1},
	}

	ranked, err := e.RankAgentsByTrust(context.Background(), agents, task)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	for i, want := range []string{"first", "second", "third"} {
		assert.Equal(t, want, ranked[i].Agent.ID)
	}
}

func TestRankAgentsByTrust_EmptyPool(t *testing.T) {
	e := NewTrustEvaluator(nil, nil, zap.NewNop())

	ranked, err := e.RankAgentsByTrust(context.Background(), nil, &types.Task{ID: "t1"})
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRankAgentsByTrust_SkipsNilAgents(t *testing.T) {
	e := NewTrustEvaluator(nil, nil, zap.NewNop())

	ranked, err := e.RankAgentsByTrust(context.Background(),
		[]*registry.Agent{nil, {ID: "a1", Capacity: 1}, nil},
		&types.Task{ID: "t1"})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "a1", ranked[0].Agent.ID)
}

func TestRankAgentsByTrust_CancelledContext(t *testing.T) {
	e := NewTrustEvaluator(nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RankAgentsByTrust(ctx,
		[]*registry.Agent{{ID: "a1", Capacity: 1}},
		&types.Task{ID: "t1"})
	assert.Error(t, err)
}
