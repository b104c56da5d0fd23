package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// stalenessChecker periodically inspects heartbeat timestamps and downgrades
// agent status when they go quiet. It only flips status: agents are never
// removed and routing never reads status, so a flapping checker cannot
// destabilize selection.
type stalenessChecker struct {
	registry *AgentRegistry
	config   *RegistryConfig
	logger   *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

func newStalenessChecker(registry *AgentRegistry, config *RegistryConfig, logger *zap.Logger) *stalenessChecker {
	return &stalenessChecker{
		registry: registry,
		config:   config,
		logger:   logger.With(zap.String("component", "staleness_checker")),
		done:     make(chan struct{}),
	}
}

// Start launches the staleness loop.
func (s *stalenessChecker) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("staleness checker started",
		zap.Duration("interval", s.config.HeartbeatInterval),
		zap.Duration("timeout", s.config.HeartbeatTimeout),
	)
}

// Stop terminates the staleness loop and waits for it to exit.
func (s *stalenessChecker) Stop() {
	close(s.done)
	s.wg.Wait()
	s.logger.Info("staleness checker stopped")
}

func (s *stalenessChecker) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep downgrades agents whose heartbeats went stale. One timeout means
// degraded; three timeouts means presumed offline.
func (s *stalenessChecker) sweep() {
	now := time.Now()
	for _, agent := range s.registry.List() {
		silence := now.Sub(agent.LastHeartbeat)
		switch {
		case silence > 3*s.config.HeartbeatTimeout:
			if agent.Status != AgentStatusOffline {
				s.logger.Warn("agent presumed offline",
					zap.String("agent_id", agent.ID),
					zap.Duration("silence", silence),
				)
				s.registry.setStatus(agent.ID, AgentStatusOffline)
			}
		case silence > s.config.HeartbeatTimeout:
			if agent.Status == AgentStatusOnline {
				s.logger.Warn("agent heartbeat stale",
					zap.String("agent_id", agent.ID),
					zap.Duration("silence", silence),
				)
				s.registry.setStatus(agent.ID, AgentStatusDegraded)
			}
		}
	}
}
