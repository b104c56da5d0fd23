package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/types"
)

// AgentRegistry is the default in-memory Registry implementation. It owns
// all agent state: every workload mutation is linearized behind a single
// write lock so readers never observe a half-updated pool.
type AgentRegistry struct {
	mu sync.RWMutex

	// agents stores registered agents by ID.
	agents map[string]*Agent

	// order preserves registration order. List returns agents in this order
	// so that downstream tie-breaking stays deterministic.
	order []string

	// eventHandlers stores event handlers by subscription ID.
	eventHandlers map[string]RegistryEventHandler
	handlerMu     sync.RWMutex

	// staleness flips agent status on heartbeat timeouts.
	staleness *stalenessChecker

	config *RegistryConfig
	logger *zap.Logger
}

// RegistryConfig holds configuration for the agent registry.
type RegistryConfig struct {
	// EnableHealthCheck enables the heartbeat staleness checker.
	EnableHealthCheck bool `json:"enable_health_check" yaml:"enable_health_check"`

	// HeartbeatInterval is how often staleness is evaluated.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// HeartbeatTimeout is the staleness threshold: agents quieter than this
	// are marked degraded, and offline past three times this value. Staleness
	// never unregisters an agent.
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
}

// DefaultRegistryConfig returns a RegistryConfig with sensible defaults.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		EnableHealthCheck: true,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
	}
}

// NewAgentRegistry creates a new agent registry.
func NewAgentRegistry(config *RegistryConfig, logger *zap.Logger) *AgentRegistry {
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &AgentRegistry{
		agents:        make(map[string]*Agent),
		eventHandlers: make(map[string]RegistryEventHandler),
		config:        config,
		logger:        logger.With(zap.String("component", "agent_registry")),
	}

	if config.EnableHealthCheck {
		r.staleness = newStalenessChecker(r, config, r.logger)
	}

	return r
}

// Start starts the registry background processes.
func (r *AgentRegistry) Start(ctx context.Context) error {
	if r.staleness != nil {
		r.staleness.Start()
	}
	r.logger.Info("agent registry started")
	return nil
}

// Register inserts a new agent. Duplicate IDs are rejected so a stale
// workload counter can never be shadowed by a second entry.
func (r *AgentRegistry) Register(agent *Agent) error {
	if err := agent.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.ID]; exists {
		return types.NewError(types.ErrAlreadyExists,
			fmt.Sprintf("agent %s already registered", agent.ID)).WithAgentID(agent.ID)
	}

	stored := agent.Clone()
	now := time.Now()
	stored.RegisteredAt = now
	stored.LastHeartbeat = now
	if stored.Status == "" {
		stored.Status = AgentStatusOnline
	}
	if stored.Type == "" {
		stored.Type = AgentTypeCustom
	}

	r.agents[stored.ID] = stored
	r.order = append(r.order, stored.ID)

	r.logger.Info("agent registered",
		zap.String("agent_id", stored.ID),
		zap.String("agent_type", string(stored.Type)),
		zap.Int("capacity", stored.Capacity),
		zap.Bool("is_local", stored.IsLocal),
	)

	r.emitEvent(&RegistryEvent{
		Type:      EventAgentRegistered,
		AgentID:   stored.ID,
		Status:    stored.Status,
		Timestamp: now,
	})

	return nil
}

// Unregister removes an agent by ID.
func (r *AgentRegistry) Unregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agentID]; !exists {
		return types.NewError(types.ErrNotFound,
			fmt.Sprintf("agent %s not found", agentID)).WithAgentID(agentID)
	}

	delete(r.agents, agentID)
	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("agent unregistered", zap.String("agent_id", agentID))

	r.emitEvent(&RegistryEvent{
		Type:      EventAgentUnregistered,
		AgentID:   agentID,
		Timestamp: time.Now(),
	})

	return nil
}

// Get returns a copy of the agent, if registered.
func (r *AgentRegistry) Get(agentID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return nil, false
	}
	return agent.Clone(), true
}

// List returns copies of all agents in registration order.
func (r *AgentRegistry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*Agent, 0, len(r.order))
	for _, id := range r.order {
		if agent, ok := r.agents[id]; ok {
			agents = append(agents, agent.Clone())
		}
	}
	return agents
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// UpdateWorkload sets an agent's workload to an absolute value. Absent
// agents are a deliberate no-op so callers reporting on departed agents
// don't have to race unregistration. Negative values clamp to 0.
func (r *AgentRegistry) UpdateWorkload(agentID string, workload int) {
	if workload < 0 {
		workload = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return
	}

	agent.Workload = workload
	agent.LastHeartbeat = time.Now()

	if workload > agent.Capacity {
		r.logger.Warn("agent workload exceeds capacity",
			zap.String("agent_id", agentID),
			zap.Int("workload", workload),
			zap.Int("capacity", agent.Capacity),
		)
	}
}

// IncrementWorkload adjusts an agent's workload by delta under the registry
// lock. The counter clamps at 0 on release so double releases cannot drive
// it negative.
func (r *AgentRegistry) IncrementWorkload(agentID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return types.NewError(types.ErrNotFound,
			fmt.Sprintf("agent %s not found", agentID)).WithAgentID(agentID)
	}

	next := agent.Workload + delta
	if next < 0 {
		next = 0
	}
	agent.Workload = next
	agent.LastHeartbeat = time.Now()

	if next > agent.Capacity {
		r.logger.Debug("agent over capacity",
			zap.String("agent_id", agentID),
			zap.Int("workload", next),
			zap.Int("capacity", agent.Capacity),
		)
	}

	return nil
}

// Heartbeat refreshes an agent's liveness timestamp and restores online
// status if staleness had downgraded it.
func (r *AgentRegistry) Heartbeat(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return types.NewError(types.ErrNotFound,
			fmt.Sprintf("agent %s not found", agentID)).WithAgentID(agentID)
	}

	agent.LastHeartbeat = time.Now()
	if agent.Status != AgentStatusOnline {
		agent.Status = AgentStatusOnline
		r.emitEvent(&RegistryEvent{
			Type:      EventAgentStatusChanged,
			AgentID:   agentID,
			Status:    AgentStatusOnline,
			Timestamp: agent.LastHeartbeat,
		})
	}
	return nil
}

// Subscribe registers an event handler and returns a subscription ID.
func (r *AgentRegistry) Subscribe(handler RegistryEventHandler) string {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()

	id := fmt.Sprintf("sub-%d", time.Now().UnixNano())
	r.eventHandlers[id] = handler
	return id
}

// Unsubscribe removes a previously registered handler.
func (r *AgentRegistry) Unsubscribe(subscriptionID string) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()

	delete(r.eventHandlers, subscriptionID)
}

// Close stops background processes.
func (r *AgentRegistry) Close() error {
	if r.staleness != nil {
		r.staleness.Stop()
	}
	r.logger.Info("agent registry closed")
	return nil
}

// setStatus flips an agent's status, emitting an event on change. Used by
// the staleness checker.
func (r *AgentRegistry) setStatus(agentID string, status AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists || agent.Status == status {
		return
	}

	old := agent.Status
	agent.Status = status

	r.logger.Debug("agent status changed",
		zap.String("agent_id", agentID),
		zap.String("old_status", string(old)),
		zap.String("new_status", string(status)),
	)

	r.emitEvent(&RegistryEvent{
		Type:      EventAgentStatusChanged,
		AgentID:   agentID,
		Status:    status,
		Timestamp: time.Now(),
	})
}

// emitEvent delivers a registry event to all subscribers without holding
// them on the registry lock.
func (r *AgentRegistry) emitEvent(event *RegistryEvent) {
	r.handlerMu.RLock()
	handlers := make([]RegistryEventHandler, 0, len(r.eventHandlers))
	for _, h := range r.eventHandlers {
		handlers = append(handlers, h)
	}
	r.handlerMu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// Ensure AgentRegistry implements Registry interface.
var _ Registry = (*AgentRegistry)(nil)
