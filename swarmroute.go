// Package swarmroute assembles the routing core: an agent registry, a
// workload-first task scorer with trust-aware ranking, trust and risk
// trackers, and a delegation orchestrator, wired together behind one
// explicitly constructed Core.
//
// Nothing in this package is global. New builds every component from a
// config.Config plus functional options for injected collaborators, and
// Close tears the whole context down again. Persistence and metrics hang
// off the event bus, so neither ever sits on the scoring path.
//
// Minimal usage:
//
//	core, err := swarmroute.New(nil,
//		swarmroute.WithLogger(logger),
//		swarmroute.WithLocalInvoker(invoker))
//	if err != nil {
//		return err
//	}
//	defer core.Close()
//
//	core.Registry().Register(&registry.Agent{ID: "worker-1", Capacity: 5})
//	result, err := core.Delegate(ctx, &types.Task{ID: "t-1", Description: "summarize"})
package swarmroute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quorvia/swarmroute/config"
	"github.com/quorvia/swarmroute/internal/database"
	"github.com/quorvia/swarmroute/internal/metrics"
	"github.com/quorvia/swarmroute/swarm/compress"
	"github.com/quorvia/swarmroute/swarm/delegation"
	"github.com/quorvia/swarmroute/swarm/events"
	"github.com/quorvia/swarmroute/swarm/inference"
	"github.com/quorvia/swarmroute/swarm/knowledge"
	"github.com/quorvia/swarmroute/swarm/persistence"
	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/swarm/risk"
	"github.com/quorvia/swarmroute/swarm/routing"
	"github.com/quorvia/swarmroute/swarm/trust"
	"github.com/quorvia/swarmroute/types"
)

// persistTimeout bounds one mirror write issued by an event subscriber.
const persistTimeout = 5 * time.Second

// coreOptions collects the injectable collaborators.
type coreOptions struct {
	logger    *zap.Logger
	local     inference.Invoker
	remote    inference.Invoker
	evidence  trust.EvidenceProvider
	decisions persistence.DecisionStore
	auditDB   *gorm.DB
	collector *metrics.Collector
	now       func() time.Time
}

// Option customizes Core construction.
type Option func(*coreOptions)

// WithLogger sets the logger handed to every component. Defaults to a
// no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *coreOptions) { o.logger = logger }
}

// WithLocalInvoker injects the local inference path, replacing the HTTP
// invoker otherwise built from config.
func WithLocalInvoker(invoker inference.Invoker) Option {
	return func(o *coreOptions) { o.local = invoker }
}

// WithRemoteInvoker injects the remote inference path, replacing the HTTP
// invoker otherwise built from config.
func WithRemoteInvoker(invoker inference.Invoker) Option {
	return func(o *coreOptions) { o.remote = invoker }
}

// WithEvidenceProvider injects the trust evidence source. When absent the
// core feeds a knowledge.WorkLog from its own delegation outcomes.
func WithEvidenceProvider(provider trust.EvidenceProvider) Option {
	return func(o *coreOptions) { o.evidence = provider }
}

// WithDecisionStore injects the routing decision store. The core does not
// close an injected store.
func WithDecisionStore(store persistence.DecisionStore) Option {
	return func(o *coreOptions) { o.decisions = store }
}

// WithAuditDB injects the database for the delegation audit log, enabling
// the log regardless of the config switch. The core does not close an
// injected database.
func WithAuditDB(db *gorm.DB) Option {
	return func(o *coreOptions) { o.auditDB = db }
}

// WithCollector attaches prometheus recording to the event subscribers.
// The core never builds a collector itself because collectors register
// with the process-wide default registry.
func WithCollector(collector *metrics.Collector) Option {
	return func(o *coreOptions) { o.collector = collector }
}

// WithClock overrides the clock used by every component, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *coreOptions) { o.now = now }
}

// Core is the assembled routing context. Construct it with New, share it
// freely across goroutines, and Close it exactly once when done.
type Core struct {
	config *config.Config
	logger *zap.Logger
	now    func() time.Time

	registry     *registry.AgentRegistry
	bus          *events.Bus
	evaluator    *trust.TrustEvaluator
	tracker      *risk.InteractionTracker
	cache        *routing.DecisionCache
	scorer       *routing.TaskScorer
	orchestrator *delegation.Orchestrator

	// worklog is non-nil only when the core owns its evidence source; it
	// is fed from Delegate outcomes.
	worklog *knowledge.WorkLog

	decisions persistence.DecisionStore
	audit     *persistence.DelegationLog
	collector *metrics.Collector

	// ownsDecisions and auditDB track resources the core built itself and
	// therefore must close.
	ownsDecisions bool
	auditDB       *gorm.DB

	busSubs     []string
	registrySub string

	mu     sync.Mutex
	closed bool
}

// New builds a Core from cfg. A nil cfg means defaults. The returned Core
// is running: the registry staleness checker and event dispatch are live,
// and the caller owns exactly one Close.
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	var options coreOptions
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := options.now
	if now == nil {
		now = time.Now
	}

	core := &Core{
		config:    cfg,
		logger:    logger.With(zap.String("component", "core")),
		now:       now,
		collector: options.collector,
	}
	fail := func(err error) (*Core, error) {
		core.Close()
		return nil, err
	}

	core.bus = events.NewBus(&events.BusConfig{
		BufferSize: cfg.Swarm.Events.BufferSize,
		Now:        now,
	}, logger)

	core.registry = registry.NewAgentRegistry(&registry.RegistryConfig{
		EnableHealthCheck: cfg.Swarm.Registry.EnableHealthCheck,
		HeartbeatInterval: cfg.Swarm.Registry.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Swarm.Registry.HeartbeatTimeout,
	}, logger)

	evidence := options.evidence
	if evidence == nil {
		core.worklog = knowledge.NewWorkLog(&knowledge.WorkLogConfig{Now: now}, logger)
		evidence = core.worklog
	}
	core.evaluator = trust.NewTrustEvaluator(&trust.EvaluatorConfig{
		HistorySize:              cfg.Trust.HistorySize,
		ConfidenceThreshold:      cfg.Trust.ConfidenceThreshold,
		MinTrustThreshold:        cfg.Trust.MinTrustThreshold,
		TrustDecayRate:           cfg.Trust.TrustDecayRate,
		MaxConcurrentEvaluations: cfg.Trust.MaxConcurrentEvaluations,
		EvidenceTimeout:          cfg.Trust.EvidenceTimeout,
		Now:                      now,
	}, evidence, logger)

	core.tracker = risk.NewInteractionTracker(&risk.TrackerConfig{
		WindowSize:                  cfg.Risk.WindowSize,
		GlobalWindowSize:            cfg.Risk.GlobalWindowSize,
		FailedHandoffThreshold:      cfg.Risk.FailedHandoffThreshold,
		ConsecutiveFailureThreshold: cfg.Risk.ConsecutiveFailureThreshold,
		ConsensusFailureRate:        cfg.Risk.ConsensusFailureRate,
		MaxAverageLatencyMs:         cfg.Risk.MaxAverageLatencyMs,
		MinHandoffSuccessRate:       cfg.Risk.MinHandoffSuccessRate,
	}, core.registry, logger)

	core.cache = routing.NewDecisionCache(&routing.CacheConfig{
		TTL:        cfg.Routing.CacheTTL,
		MaxEntries: cfg.Routing.CacheMaxEntries,
		Now:        now,
	}, logger)
	core.scorer = routing.NewTaskScorer(core.cache, logger)

	core.decisions = options.decisions
	if core.decisions == nil {
		store, err := persistence.NewDecisionStore(decisionStoreConfig(cfg, now), logger)
		if err != nil {
			return fail(fmt.Errorf("build decision store: %w", err))
		}
		core.decisions = store
		core.ownsDecisions = true
	}

	if db := options.auditDB; db != nil {
		audit, err := persistence.NewDelegationLog(db, logger)
		if err != nil {
			return fail(fmt.Errorf("build delegation audit log: %w", err))
		}
		core.audit = audit
	} else if cfg.Swarm.Persistence.EnableAuditLog {
		opened, err := database.Open(cfg.Database, logger)
		if err != nil {
			return fail(fmt.Errorf("open audit database: %w", err))
		}
		core.auditDB = opened
		audit, err := persistence.NewDelegationLog(opened, logger)
		if err != nil {
			return fail(fmt.Errorf("build delegation audit log: %w", err))
		}
		core.audit = audit
	}

	local, remote, err := core.buildInvokers(options, logger)
	if err != nil {
		return fail(err)
	}

	var compressor delegation.Compressor
	if cfg.Swarm.Compression.Enabled {
		counter := compress.NewTiktokenCounter(cfg.Swarm.Compression.Encoding)
		compressor = compress.NewGzipCompressor(&compress.GzipConfig{
			MinTokens: cfg.Swarm.Compression.MinTokens,
			Encoding:  cfg.Swarm.Compression.Encoding,
		}, counter, logger)
	}

	orchestrator, err := delegation.NewOrchestrator(&delegation.Config{
		EnableLocalInference: cfg.Delegation.EnableLocalInference,
		EnableTrustRouting:   cfg.Delegation.EnableTrustRouting,
		LatencyTargetMs:      cfg.Delegation.LatencyTargetMs,
		Now:                  now,
	}, delegation.Dependencies{
		Registry:   core.registry,
		Scorer:     core.scorer,
		Trust:      core.evaluator,
		Risk:       core.tracker,
		Local:      local,
		Remote:     remote,
		Compressor: compressor,
		Publisher:  core.bus,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("build orchestrator: %w", err))
	}
	core.orchestrator = orchestrator

	core.subscribe()

	if err := core.registry.Start(context.Background()); err != nil {
		return fail(fmt.Errorf("start registry: %w", err))
	}

	core.logger.Info("core assembled",
		zap.String("decision_store", cfg.Swarm.Persistence.DecisionStore),
		zap.Bool("audit_log", core.audit != nil),
		zap.Bool("local_inference", local != nil),
		zap.Bool("remote_inference", remote != nil))
	return core, nil
}

// buildInvokers resolves the local and remote inference paths: injected
// invokers win, otherwise HTTP invokers are built from config, with the
// circuit breaker wrapping the local path only.
func (c *Core) buildInvokers(options coreOptions, logger *zap.Logger) (local, remote inference.Invoker, err error) {
	infCfg := c.config.Swarm.Inference

	local = options.local
	if local == nil && infCfg.LocalURL != "" {
		httpInvoker, err := inference.NewHTTPInvoker(&inference.HTTPConfig{
			BaseURL: infCfg.LocalURL,
			Timeout: infCfg.Timeout,
		}, nil, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("build local invoker: %w", err)
		}
		local = inference.NewBreakerInvoker("local-inference", httpInvoker, &inference.BreakerConfig{
			MaxFailures: infCfg.Breaker.MaxFailures,
			Timeout:     infCfg.Breaker.Timeout,
			Interval:    infCfg.Breaker.Interval,
		}, logger)
	}

	remote = options.remote
	if remote == nil && infCfg.RemoteURL != "" {
		httpInvoker, err := inference.NewHTTPInvoker(&inference.HTTPConfig{
			BaseURL: infCfg.RemoteURL,
			Timeout: infCfg.Timeout,
		}, nil, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("build remote invoker: %w", err)
		}
		remote = httpInvoker
	}
	return local, remote, nil
}

// subscribe attaches the mirror and metrics subscribers. Handlers run on
// bus goroutines, never on the caller of Delegate.
func (c *Core) subscribe() {
	c.busSubs = append(c.busSubs,
		c.bus.Subscribe(events.EventRoutingDecision, c.onRoutingDecision),
		c.bus.Subscribe(events.EventDelegationComplete, c.onDelegationComplete),
		c.bus.Subscribe(events.EventDelegationFailed, c.onDelegationFailed),
		c.bus.Subscribe(events.EventTrustUpdated, c.onTrustUpdated),
		c.bus.Subscribe(events.EventRiskDetected, c.onRiskDetected),
	)
	c.registrySub = c.registry.Subscribe(c.onRegistryEvent)
}

func (c *Core) onRoutingDecision(event events.Event) {
	decision, ok := event.Payload.(*routing.RoutingDecision)
	if !ok {
		return
	}
	if c.collector != nil {
		c.collector.RecordRoutingDecision(routingStrategy(decision))
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.decisions.SaveDecision(ctx, decision); err != nil {
		c.logger.Debug("decision mirror failed",
			zap.String("task_id", decision.TaskID), zap.Error(err))
	}
}

func (c *Core) onDelegationComplete(event events.Event) {
	result, ok := event.Payload.(*delegation.DelegationResult)
	if !ok {
		return
	}
	c.recordDelegation(result, "success")
	c.appendAudit(result)
}

func (c *Core) onDelegationFailed(event events.Event) {
	result, ok := event.Payload.(*delegation.DelegationResult)
	if !ok {
		return
	}
	c.recordDelegation(result, "failure")
	c.appendAudit(result)
}

func (c *Core) onTrustUpdated(event events.Event) {
	outcome, ok := event.Payload.(*types.TaskOutcome)
	if !ok || c.collector == nil {
		return
	}
	if score, ok := c.evaluator.TrustScore(outcome.AgentID); ok {
		c.collector.SetTrustScore(outcome.AgentID, score)
	}
}

func (c *Core) onRiskDetected(event events.Event) {
	detected, ok := event.Payload.(*risk.Risk)
	if !ok || c.collector == nil {
		return
	}
	c.collector.RecordRiskDetection(string(detected.Type))
}

func (c *Core) onRegistryEvent(event *registry.RegistryEvent) {
	switch event.Type {
	case registry.EventAgentRegistered:
		c.bus.Publish(events.EventAgentRegistered, event)
	case registry.EventAgentUnregistered:
		c.bus.Publish(events.EventAgentUnregistered, event)
	}
	if c.collector != nil {
		c.collector.SetAgentsRegistered(c.registry.Count())
	}
}

func (c *Core) recordDelegation(result *delegation.DelegationResult, outcome string) {
	if c.collector == nil {
		return
	}
	path := "none"
	var duration time.Duration
	if result.Metrics != nil {
		if result.Metrics.Path != "" {
			path = result.Metrics.Path
		}
		duration = time.Duration(result.Metrics.DurationMs * float64(time.Millisecond))
	}
	c.collector.RecordDelegation(path, outcome, duration)
}

func (c *Core) appendAudit(result *delegation.DelegationResult) {
	if c.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.audit.AppendResult(ctx, result); err != nil {
		c.logger.Warn("audit append failed",
			zap.String("task_id", result.TaskID), zap.Error(err))
	}
}

// routingStrategy labels a decision for the metrics vector.
func routingStrategy(decision *routing.RoutingDecision) string {
	switch {
	case decision.FromCache:
		return "cache"
	case decision.TrustAware:
		return "trust_aware"
	default:
		return "workload"
	}
}

// decisionStoreConfig maps the flat config sections onto the store config.
func decisionStoreConfig(cfg *config.Config, now func() time.Time) *persistence.StoreConfig {
	return &persistence.StoreConfig{
		Type:         persistence.StoreType(cfg.Swarm.Persistence.DecisionStore),
		MaxEntries:   cfg.Swarm.Persistence.MaxEntries,
		RetentionTTL: cfg.Swarm.Persistence.RetentionTTL,
		MaxIndexSize: cfg.Swarm.Persistence.MaxIndexSize,
		Redis: persistence.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			KeyPrefix:    cfg.Swarm.Persistence.KeyPrefix,
		},
		Now: now,
	}
}

// Delegate routes and executes one task through the orchestrator, then
// feeds the outcome to the owned evidence work log and refusal counter.
func (c *Core) Delegate(ctx context.Context, task *types.Task) (*delegation.DelegationResult, error) {
	result, err := c.orchestrator.Delegate(ctx, task)
	if err != nil {
		return nil, err
	}

	if c.worklog != nil && result.DelegatedToAgentID != "" {
		c.worklog.RecordCompletion(result.DelegatedToAgentID, knowledge.WorkRecord{
			TaskID:      result.TaskID,
			Description: task.Description,
			Success:     result.Success,
			CompletedAt: c.now(),
		})
	}
	if c.collector != nil && !result.Success && result.Error == delegation.ErrMsgNoAgents {
		c.collector.RecordRefusal()
	}
	return result, nil
}

// AssessRisk runs a point-in-time assessment over the recorded interaction
// windows, publishes one risk.detected event per detection, and refreshes
// the per-agent risk gauges.
func (c *Core) AssessRisk() *risk.RiskAssessment {
	assessment := c.tracker.Assess(nil)

	for _, group := range [][]*risk.Risk{
		assessment.CoordinationRisks,
		assessment.BehavioralRisks,
		assessment.PerformanceRisks,
	} {
		for _, detected := range group {
			c.bus.Publish(events.EventRiskDetected, detected)
		}
	}
	if c.collector != nil {
		for agentID, score := range c.tracker.Snapshot() {
			c.collector.SetRiskScore(agentID, score)
		}
	}
	return assessment
}

// Config returns the configuration the core was built from.
func (c *Core) Config() *config.Config { return c.config }

// Registry returns the agent registry.
func (c *Core) Registry() *registry.AgentRegistry { return c.registry }

// Events returns the lifecycle event bus.
func (c *Core) Events() *events.Bus { return c.bus }

// Trust returns the trust evaluator.
func (c *Core) Trust() *trust.TrustEvaluator { return c.evaluator }

// Risk returns the interaction risk tracker.
func (c *Core) Risk() *risk.InteractionTracker { return c.tracker }

// Orchestrator returns the delegation orchestrator.
func (c *Core) Orchestrator() *delegation.Orchestrator { return c.orchestrator }

// Decisions returns the routing decision store.
func (c *Core) Decisions() persistence.DecisionStore { return c.decisions }

// Audit returns the delegation audit log, or nil when disabled.
func (c *Core) Audit() *persistence.DelegationLog { return c.audit }

// Close tears the core down: subscriptions first, then the registry, the
// bus, and every store the core opened itself. Close is idempotent.
func (c *Core) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	for _, id := range c.busSubs {
		c.bus.Unsubscribe(id)
	}
	c.busSubs = nil
	if c.registrySub != "" {
		c.registry.Unsubscribe(c.registrySub)
		c.registrySub = ""
	}

	var errs []error
	if err := c.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}
	c.bus.Stop()
	if c.ownsDecisions && c.decisions != nil {
		if err := c.decisions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close decision store: %w", err))
		}
	}
	if c.auditDB != nil {
		sqlDB, err := c.auditDB.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("close audit database: %w", err))
		}
	}

	c.logger.Info("core closed")
	return errors.Join(errs...)
}
