// Package persistence provides supplemental storage for routing decisions
// and delegation outcomes. Nothing here sits on the scoring hot path; the
// stores are fed by event subscribers and queried by the operational API.
//
// Supported decision store backends:
//   - Memory: for development and testing (default)
//   - Redis: for distributed deployments, with a sorted-set recency index
//
// Delegation outcomes are appended to a relational log (see DelegationLog).
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/routing"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStoreClosed   = errors.New("store is closed")
	ErrCacheMiss     = errors.New("cache miss")
)

// StoreType selects the decision store backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// RedisConfig contains redis-specific configuration.
type RedisConfig struct {
	// Addr is the redis server address, host:port.
	Addr string `json:"addr" yaml:"addr"`

	// Password is the redis password (optional).
	Password string `json:"password" yaml:"password"`

	// DB is the redis database number.
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size.
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int `json:"min_idle_conns" yaml:"min_idle_conns"`

	// KeyPrefix is the prefix for all redis keys.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// StoreConfig configures decision store implementations.
type StoreConfig struct {
	// Type is the storage backend type.
	Type StoreType `json:"type" yaml:"type"`

	// MaxEntries bounds the in-memory backend. Oldest entries are evicted
	// first.
	MaxEntries int `json:"max_entries" yaml:"max_entries"`

	// RetentionTTL is how long a stored decision stays readable. Zero
	// disables expiry.
	RetentionTTL time.Duration `json:"retention_ttl" yaml:"retention_ttl"`

	// MaxIndexSize bounds the redis recency index.
	MaxIndexSize int64 `json:"max_index_size" yaml:"max_index_size"`

	// Redis configuration, used only when Type is "redis".
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Now is the clock used for recency and expiry. Defaults to time.Now.
	Now func() time.Time `json:"-" yaml:"-"`
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Type:         StoreTypeMemory,
		MaxEntries:   1000,
		RetentionTTL: 24 * time.Hour,
		MaxIndexSize: 10000,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			KeyPrefix:    "swarmroute:",
		},
		Now: time.Now,
	}
}

func (c *StoreConfig) normalize() {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1000
	}
	if c.MaxIndexSize <= 0 {
		c.MaxIndexSize = 10000
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "swarmroute:"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store is the base interface for all persistent stores.
type Store interface {
	// Close closes the store and releases resources.
	Close() error

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error
}

// DecisionStore records routing decisions for later inspection. Saves
// overwrite; a task keeps only its most recent decision.
type DecisionStore interface {
	Store

	// SaveDecision persists one routing decision.
	SaveDecision(ctx context.Context, decision *routing.RoutingDecision) error

	// GetDecision returns the stored decision for a task. A decision whose
	// retention has lapsed while its index entry survives yields
	// ErrCacheMiss; an unknown task yields ErrNotFound.
	GetDecision(ctx context.Context, taskID string) (*routing.RoutingDecision, error)

	// ListRecent returns up to limit decisions, newest first, pruning
	// expired index entries as it goes.
	ListRecent(ctx context.Context, limit int) ([]*routing.RoutingDecision, error)

	// DeleteDecision removes a task's decision and its index entry. Missing
	// tasks are a no-op.
	DeleteDecision(ctx context.Context, taskID string) error

	// Count returns the number of indexed decisions, expired entries
	// included until the next prune.
	Count(ctx context.Context) (int64, error)
}

// NewDecisionStore builds a decision store for the configured backend.
func NewDecisionStore(config *StoreConfig, logger *zap.Logger) (DecisionStore, error) {
	if config == nil {
		config = DefaultStoreConfig()
	}
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryDecisionStore(config, logger), nil
	case StoreTypeRedis:
		return NewRedisDecisionStore(config, logger)
	default:
		return nil, fmt.Errorf("unsupported decision store type: %s", config.Type)
	}
}
