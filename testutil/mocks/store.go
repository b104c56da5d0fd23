package mocks

import (
	"context"
	"sync"

	"github.com/quorvia/swarmroute/swarm/persistence"
	"github.com/quorvia/swarmroute/swarm/routing"
)

// FlakyDecisionStore wraps a real decision store and fails selected
// operations on demand, for exercising degraded-storage paths.
type FlakyDecisionStore struct {
	mu sync.Mutex

	inner   persistence.DecisionStore
	saveErr error
	readErr error
	pingErr error

	saveAttempts int
}

// NewFlakyDecisionStore wraps inner; a nil inner gets an in-memory
// store.
func NewFlakyDecisionStore(inner persistence.DecisionStore) *FlakyDecisionStore {
	if inner == nil {
		inner = persistence.NewMemoryDecisionStore(nil, nil)
	}
	return &FlakyDecisionStore{inner: inner}
}

// FailSaves makes SaveDecision fail with err. A nil err restores saves.
func (m *FlakyDecisionStore) FailSaves(err error) *FlakyDecisionStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// FailReads makes GetDecision, ListRecent, and Count fail with err.
func (m *FlakyDecisionStore) FailReads(err error) *FlakyDecisionStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
	return m
}

// FailPing makes Ping fail with err.
func (m *FlakyDecisionStore) FailPing(err error) *FlakyDecisionStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// SaveAttempts returns how many saves were attempted, failed ones
// included.
func (m *FlakyDecisionStore) SaveAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAttempts
}

// Close implements persistence.Store.
func (m *FlakyDecisionStore) Close() error {
	return m.inner.Close()
}

// Ping implements persistence.Store.
func (m *FlakyDecisionStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	err := m.pingErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Ping(ctx)
}

// SaveDecision implements persistence.DecisionStore.
func (m *FlakyDecisionStore) SaveDecision(ctx context.Context, decision *routing.RoutingDecision) error {
	m.mu.Lock()
	m.saveAttempts++
	err := m.saveErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.SaveDecision(ctx, decision)
}

// GetDecision implements persistence.DecisionStore.
func (m *FlakyDecisionStore) GetDecision(ctx context.Context, taskID string) (*routing.RoutingDecision, error) {
	m.mu.Lock()
	err := m.readErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.GetDecision(ctx, taskID)
}

// ListRecent implements persistence.DecisionStore.
func (m *FlakyDecisionStore) ListRecent(ctx context.Context, limit int) ([]*routing.RoutingDecision, error) {
	m.mu.Lock()
	err := m.readErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.ListRecent(ctx, limit)
}

// DeleteDecision implements persistence.DecisionStore.
func (m *FlakyDecisionStore) DeleteDecision(ctx context.Context, taskID string) error {
	return m.inner.DeleteDecision(ctx, taskID)
}

// Count implements persistence.DecisionStore.
func (m *FlakyDecisionStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	err := m.readErr
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return m.inner.Count(ctx)
}

var _ persistence.DecisionStore = (*FlakyDecisionStore)(nil)
