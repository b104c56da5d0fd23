package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/routing"
	"github.com/quorvia/swarmroute/types"
)

type decisionEntry struct {
	decision  routing.RoutingDecision
	expiresAt time.Time
}

// MemoryDecisionStore is an in-memory implementation of DecisionStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryDecisionStore struct {
	config *StoreConfig
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]decisionEntry
	order   []string
	closed  bool
}

// NewMemoryDecisionStore creates a new in-memory decision store. Config and
// logger may be nil.
func NewMemoryDecisionStore(config *StoreConfig, logger *zap.Logger) *MemoryDecisionStore {
	if config == nil {
		config = DefaultStoreConfig()
	}
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryDecisionStore{
		config:  config,
		logger:  logger.With(zap.String("component", "memory_decision_store")),
		now:     config.Now,
		entries: make(map[string]decisionEntry),
	}
}

// Close closes the store.
func (s *MemoryDecisionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy.
func (s *MemoryDecisionStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveDecision persists a routing decision, replacing any earlier decision
// for the same task and promoting it to newest.
func (s *MemoryDecisionStore) SaveDecision(ctx context.Context, decision *routing.RoutingDecision) error {
	if decision == nil || decision.TaskID == "" {
		return types.NewError(types.ErrInvalidRequest, "decision task ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	stored := *decision
	if stored.DecidedAt.IsZero() {
		stored.DecidedAt = s.now()
	}

	var expiresAt time.Time
	if s.config.RetentionTTL > 0 {
		expiresAt = s.now().Add(s.config.RetentionTTL)
	}

	if _, exists := s.entries[stored.TaskID]; exists {
		s.removeFromOrder(stored.TaskID)
	}
	s.entries[stored.TaskID] = decisionEntry{decision: stored, expiresAt: expiresAt}
	s.order = append(s.order, stored.TaskID)

	for len(s.order) > s.config.MaxEntries {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}

	return nil
}

// GetDecision returns the stored decision for a task.
func (s *MemoryDecisionStore) GetDecision(ctx context.Context, taskID string) (*routing.RoutingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := s.entries[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(entry) {
		return nil, ErrCacheMiss
	}

	decision := entry.decision
	return &decision, nil
}

// ListRecent returns up to limit decisions, newest first.
func (s *MemoryDecisionStore) ListRecent(ctx context.Context, limit int) ([]*routing.RoutingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 50
	}

	result := make([]*routing.RoutingDecision, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		entry, ok := s.entries[s.order[i]]
		if !ok || s.expired(entry) {
			continue
		}
		decision := entry.decision
		result = append(result, &decision)
	}
	return result, nil
}

// DeleteDecision removes a task's decision.
func (s *MemoryDecisionStore) DeleteDecision(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, ok := s.entries[taskID]; ok {
		delete(s.entries, taskID)
		s.removeFromOrder(taskID)
	}
	return nil
}

// Count returns the number of stored decisions, expired entries included.
func (s *MemoryDecisionStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(s.entries)), nil
}

func (s *MemoryDecisionStore) expired(entry decisionEntry) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}

func (s *MemoryDecisionStore) removeFromOrder(taskID string) {
	for i, id := range s.order {
		if id == taskID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Ensure MemoryDecisionStore implements DecisionStore
var _ DecisionStore = (*MemoryDecisionStore)(nil)
