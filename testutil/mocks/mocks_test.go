package mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorvia/swarmroute/swarm/routing"
	"github.com/quorvia/swarmroute/types"
)

func TestScriptedInvoker_DefaultEchoesAndRecords(t *testing.T) {
	m := NewScriptedInvoker()

	payload, err := m.Invoke(context.Background(), "w-1", &types.Task{ID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"agent": "w-1", "task": "t-1"}, payload)

	require.Equal(t, 1, m.CallCount())
	assert.Equal(t, InvokerCall{AgentID: "w-1", TaskID: "t-1"}, m.Calls()[0])

	m.Reset()
	assert.Zero(t, m.CallCount())
}

func TestScriptedInvoker_FailFor(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedInvoker().FailFor("w-2", boom)

	_, err := m.Invoke(context.Background(), "w-1", &types.Task{ID: "t-1"})
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), "w-2", &types.Task{ID: "t-2"})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1, m.CallsFor("w-1"))
	assert.Equal(t, 1, m.CallsFor("w-2"))
}

func TestScriptedInvoker_FailAfter(t *testing.T) {
	tired := errors.New("worn out")
	m := NewScriptedInvoker().FailAfter(2, tired)

	for i := 0; i < 2; i++ {
		_, err := m.Invoke(context.Background(), "w-1", &types.Task{ID: "t"})
		require.NoError(t, err)
	}
	_, err := m.Invoke(context.Background(), "w-1", &types.Task{ID: "t"})
	require.ErrorIs(t, err, tired)
}

func TestScriptedInvoker_DelayHonorsContext(t *testing.T) {
	m := NewScriptedInvoker().WithDelay(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Invoke(ctx, "w-1", &types.Task{ID: "t"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScriptedInvoker_NilTask(t *testing.T) {
	m := NewScriptedInvoker().WithResult("done")

	payload, err := m.Invoke(context.Background(), "w-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", payload)
	assert.Empty(t, m.Calls()[0].TaskID)
}

func TestEvidence_ScoresAndErrors(t *testing.T) {
	m := NewEvidence().WithScore("w-1", 0.9).WithDefault(0.1)

	score, err := m.RetrieveEvidence(context.Background(), "w-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, score)

	score, err = m.RetrieveEvidence(context.Background(), "w-2", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.1, score)

	down := errors.New("kb down")
	m.WithError(down)
	_, err = m.RetrieveEvidence(context.Background(), "w-1", nil)
	require.ErrorIs(t, err, down)

	assert.Equal(t, 3, m.CallCount())
}

func TestFlakyDecisionStore_SaveFailureAndRecovery(t *testing.T) {
	boom := errors.New("store down")
	store := NewFlakyDecisionStore(nil).FailSaves(boom)
	t.Cleanup(func() { _ = store.Close() })

	decision := &routing.RoutingDecision{TaskID: "t-1", AgentID: "w-1", DecidedAt: time.Now()}

	require.ErrorIs(t, store.SaveDecision(context.Background(), decision), boom)
	assert.Equal(t, 1, store.SaveAttempts())

	store.FailSaves(nil)
	require.NoError(t, store.SaveDecision(context.Background(), decision))
	assert.Equal(t, 2, store.SaveAttempts())

	got, err := store.GetDecision(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "w-1", got.AgentID)
}

func TestFlakyDecisionStore_ReadAndPingFailures(t *testing.T) {
	boom := errors.New("store down")
	store := NewFlakyDecisionStore(nil)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(context.Background()))

	store.FailPing(boom)
	require.ErrorIs(t, store.Ping(context.Background()), boom)

	store.FailReads(boom)
	_, err := store.GetDecision(context.Background(), "t-1")
	require.ErrorIs(t, err, boom)
	_, err = store.ListRecent(context.Background(), 5)
	require.ErrorIs(t, err, boom)
	_, err = store.Count(context.Background())
	require.ErrorIs(t, err, boom)
}
