package routing

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CachedDecision is one remembered task-to-agent assignment.
type CachedDecision struct {
	TaskID    string    `json:"task_id"`
	AgentID   string    `json:"agent_id"`
	DecidedAt time.Time `json:"decided_at"`
}

// CacheConfig bounds the decision cache.
type CacheConfig struct {
	// TTL is the maximum age at which a decision is still replayed.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
	// MaxEntries caps the cache; the oldest entry is evicted on overflow.
	MaxEntries int `json:"max_entries" yaml:"max_entries"`
	// Now overrides the clock, for tests.
	Now func() time.Time `json:"-" yaml:"-"`
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:        10 * time.Minute,
		MaxEntries: 1000,
	}
}

// DecisionCache remembers recent routing decisions keyed by task ID.
// Entries expire after the configured TTL and the oldest entry is evicted
// once the bound is reached.
type DecisionCache struct {
	config *CacheConfig
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*CachedDecision
	order   []string

	hits   uint64
	misses uint64
}

// NewDecisionCache creates a decision cache.
func NewDecisionCache(config *CacheConfig, logger *zap.Logger) *DecisionCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &DecisionCache{
		config:  config,
		logger:  logger.With(zap.String("component", "decision_cache")),
		now:     now,
		entries: make(map[string]*CachedDecision),
	}
}

// Get returns the cached decision for a task if one exists and is younger
// than the TTL. Expired entries are removed on access.
func (c *DecisionCache) Get(taskID string) (*CachedDecision, bool) {
	if taskID == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[taskID]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(entry.DecidedAt) >= c.config.TTL {
		c.removeLocked(taskID)
		c.misses++
		return nil, false
	}
	c.hits++
	copied := *entry
	return &copied, true
}

// Put records a decision, refreshing the entry's age if the task was
// already cached. Decisions without a task ID are not cached.
func (c *DecisionCache) Put(taskID, agentID string) {
	if taskID == "" || agentID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[taskID]; ok {
		c.removeLocked(taskID)
	}
	c.entries[taskID] = &CachedDecision{
		TaskID:    taskID,
		AgentID:   agentID,
		DecidedAt: c.now(),
	}
	c.order = append(c.order, taskID)

	for c.config.MaxEntries > 0 && len(c.entries) > c.config.MaxEntries {
		oldest := c.order[0]
		c.removeLocked(oldest)
		c.logger.Debug("evicted oldest routing decision", zap.String("task_id", oldest))
	}
}

// Invalidate drops the entry for a task, if present.
func (c *DecisionCache) Invalidate(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(taskID)
}

// Len reports how many decisions are currently cached.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the cumulative hit and miss counts.
func (c *DecisionCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// removeLocked deletes an entry from both the map and the age order.
func (c *DecisionCache) removeLocked(taskID string) {
	if _, ok := c.entries[taskID]; !ok {
		return
	}
	delete(c.entries, taskID)
	for i, id := range c.order {
		if id == taskID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
