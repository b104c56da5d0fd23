package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/routing"
	"github.com/quorvia/swarmroute/types"
)

// RedisDecisionStore is a redis-backed implementation of DecisionStore.
// Suitable for distributed deployments. Decision payloads are stored as
// TTL'd JSON values; a sorted set keyed by decision time provides the
// recency index.
type RedisDecisionStore struct {
	client *redis.Client
	config *StoreConfig
	logger *zap.Logger
	prefix string
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewRedisDecisionStore creates a redis-backed decision store and verifies
// connectivity. Config and logger may be nil.
func NewRedisDecisionStore(config *StoreConfig, logger *zap.Logger) (*RedisDecisionStore, error) {
	if config == nil {
		config = DefaultStoreConfig()
	}
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Redis.Addr,
		Password:     config.Redis.Password,
		DB:           config.Redis.DB,
		PoolSize:     config.Redis.PoolSize,
		MinIdleConns: config.Redis.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisDecisionStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis_decision_store")),
		prefix: config.Redis.KeyPrefix + "decision:",
		now:    config.Now,
	}, nil
}

// Close closes the store.
func (s *RedisDecisionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Ping checks if the store is healthy.
func (s *RedisDecisionStore) Ping(ctx context.Context) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisDecisionStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *RedisDecisionStore) dataKey(taskID string) string {
	return s.prefix + "data:" + taskID
}

func (s *RedisDecisionStore) recentKey() string {
	return s.prefix + "recent"
}

// SaveDecision persists a routing decision and updates the recency index,
// trimming the index to its configured bound.
func (s *RedisDecisionStore) SaveDecision(ctx context.Context, decision *routing.RoutingDecision) error {
	if decision == nil || decision.TaskID == "" {
		return types.NewError(types.ErrInvalidRequest, "decision task ID is required")
	}
	if s.isClosed() {
		return ErrStoreClosed
	}

	stored := *decision
	if stored.DecidedAt.IsZero() {
		stored.DecidedAt = s.now()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.dataKey(stored.TaskID), data, s.config.RetentionTTL)
	pipe.ZAdd(ctx, s.recentKey(), redis.Z{
		Score:  float64(stored.DecidedAt.UnixNano()),
		Member: stored.TaskID,
	})
	pipe.ZRemRangeByRank(ctx, s.recentKey(), 0, -(s.config.MaxIndexSize + 1))

	_, err = pipe.Exec(ctx)
	return err
}

// GetDecision returns the stored decision for a task. A payload that has
// expired while still indexed yields ErrCacheMiss.
func (s *RedisDecisionStore) GetDecision(ctx context.Context, taskID string) (*routing.RoutingDecision, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	data, err := s.client.Get(ctx, s.dataKey(taskID)).Bytes()
	if err == redis.Nil {
		if zerr := s.client.ZScore(ctx, s.recentKey(), taskID).Err(); zerr == nil {
			return nil, ErrCacheMiss
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var decision routing.RoutingDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}
	return &decision, nil
}

// ListRecent returns up to limit decisions, newest first, removing index
// entries whose payloads have expired.
func (s *RedisDecisionStore) ListRecent(ctx context.Context, limit int) ([]*routing.RoutingDecision, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.client.ZRevRange(ctx, s.recentKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	decisions := make([]*routing.RoutingDecision, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		decision, err := s.GetDecision(ctx, id)
		if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, decision)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.recentKey(), stale...).Err(); err != nil {
			s.logger.Warn("failed to prune stale decision index entries", zap.Error(err))
		}
	}
	return decisions, nil
}

// DeleteDecision removes a task's decision and its index entry.
func (s *RedisDecisionStore) DeleteDecision(ctx context.Context, taskID string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.dataKey(taskID))
	pipe.ZRem(ctx, s.recentKey(), taskID)

	_, err := pipe.Exec(ctx)
	return err
}

// Count returns the size of the recency index.
func (s *RedisDecisionStore) Count(ctx context.Context) (int64, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}
	return s.client.ZCard(ctx, s.recentKey()).Result()
}

// Ensure RedisDecisionStore implements DecisionStore
var _ DecisionStore = (*RedisDecisionStore)(nil)
