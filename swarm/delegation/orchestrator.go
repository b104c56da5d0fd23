package delegation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/swarm/events"
	"github.com/quorvia/swarmroute/swarm/inference"
	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/swarm/risk"
	"github.com/quorvia/swarmroute/swarm/routing"
	"github.com/quorvia/swarmroute/types"
)

// contextKeyCompressed is where the prepared task carries compressed context.
const contextKeyCompressed = "compressed_context"

// Dependencies are the collaborators the orchestrator drives. Registry,
// Scorer, and at least one invoker are required; everything else is
// optional and degrades gracefully when absent.
type Dependencies struct {
	Registry   registry.Registry
	Scorer     Router
	Trust      TrustSource
	Risk       RiskSource
	Local      inference.Invoker
	Remote     inference.Invoker
	Compressor Compressor
	Publisher  Publisher
}

// Orchestrator drives task delegation across the swarm.
type Orchestrator struct {
	deps   Dependencies
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	configMu sync.RWMutex
	config   Config
}

// NewOrchestrator validates the wiring and builds an orchestrator. Config
// and logger may be nil.
func NewOrchestrator(config *Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Registry == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "orchestrator requires a registry")
	}
	if deps.Scorer == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "orchestrator requires a scorer")
	}
	if deps.Local == nil && deps.Remote == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "orchestrator requires at least one inference invoker")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.LatencyTargetMs <= 0 {
		config.LatencyTargetMs = DefaultConfig().LatencyTargetMs
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:   deps,
		logger: logger.With(zap.String("component", "delegation_orchestrator")),
		tracer: otel.Tracer("swarmroute/delegation"),
		now:    config.Now,
		config: *config,
	}, nil
}

// Config returns the current configuration snapshot.
func (o *Orchestrator) Config() Config {
	o.configMu.RLock()
	defer o.configMu.RUnlock()
	return o.config
}

// UpdateConfig applies a partial reconfiguration and returns the resulting
// snapshot. Changes take effect on the next Delegate call; in-flight calls
// keep the snapshot they started with.
func (o *Orchestrator) UpdateConfig(update ConfigUpdate) Config {
	o.configMu.Lock()
	defer o.configMu.Unlock()

	if update.EnableLocalInference != nil {
		o.config.EnableLocalInference = *update.EnableLocalInference
	}
	if update.EnableTrustRouting != nil {
		o.config.EnableTrustRouting = *update.EnableTrustRouting
	}
	if update.LatencyTargetMs != nil && *update.LatencyTargetMs > 0 {
		o.config.LatencyTargetMs = *update.LatencyTargetMs
	}
	o.logger.Info("configuration updated",
		zap.Bool("enable_local_inference", o.config.EnableLocalInference),
		zap.Bool("enable_trust_routing", o.config.EnableTrustRouting),
		zap.Float64("latency_target_ms", o.config.LatencyTargetMs))
	return o.config
}

// Delegate routes and executes one task. A nil task is a caller bug and
// fails fast; every task-outcome failure is data on the result, not an
// error return.
func (o *Orchestrator) Delegate(ctx context.Context, task *types.Task) (*DelegationResult, error) {
	if task == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "task is nil")
	}

	cfg := o.Config()
	start := o.now()

	ctx, span := o.tracer.Start(ctx, "swarm.delegate",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.type", task.Type)))
	defer span.End()

	agents := o.deps.Registry.List()
	if len(agents) == 0 {
		span.SetStatus(codes.Error, ErrMsgNoAgents)
		return &DelegationResult{TaskID: task.ID, Success: false, Error: ErrMsgNoAgents}, nil
	}

	o.publish(events.EventDelegationStarted, map[string]any{
		"task_id":   task.ID,
		"task_type": task.Type,
	})

	prepared := o.prepare(task)

	// Local-first attempt over local-capable agents only. Any failure here
	// is swallowed; the fallback owns the terminal outcome.
	if cfg.EnableLocalInference && o.deps.Local != nil {
		if locals := localAgents(agents); len(locals) > 0 {
			if decision, err := o.route(task, locals, cfg); err == nil {
				result, attemptErr := o.attempt(ctx, span, task, prepared, decision, o.deps.Local, start, cfg, "local")
				if attemptErr == nil {
					return result, nil
				}
				o.logger.Debug("local inference failed, falling back",
					zap.String("task_id", task.ID),
					zap.String("agent_id", decision.AgentID),
					zap.Error(attemptErr))
			}
		}
	}

	// Consensus fallback over the entire pool.
	decision, err := o.route(task, agents, cfg)
	if err != nil {
		return o.fail(span, task, start, cfg, fmt.Sprintf("fallback routing failed: %v", err)), nil
	}
	result, attemptErr := o.attempt(ctx, span, task, prepared, decision, o.fallbackInvoker(), start, cfg, "consensus")
	if attemptErr != nil {
		return o.fail(span, task, start, cfg, fmt.Sprintf("consensus fallback failed: %v", attemptErr)), nil
	}
	return result, nil
}

// route asks the scorer for a decision over the given pool, wiring in trust
// and risk snapshots when their sources are attached.
func (o *Orchestrator) route(task *types.Task, pool []*registry.Agent, cfg Config) (*routing.RoutingDecision, error) {
	var trustInfo *routing.TrustInfo
	if cfg.EnableTrustRouting && o.deps.Trust != nil {
		trustInfo = &routing.TrustInfo{
			Scores:            o.deps.Trust.Snapshot(),
			MinTrustThreshold: o.deps.Trust.MinTrustThreshold(),
		}
	}
	var riskScores map[string]float64
	if o.deps.Risk != nil {
		riskScores = o.deps.Risk.Snapshot()
	}

	decision, err := o.deps.Scorer.Route(task, pool, trustInfo, riskScores)
	if err != nil {
		return nil, err
	}
	o.publish(events.EventRoutingDecision, decision)
	return decision, nil
}

// attempt reserves the agent, invokes it, and reports the outcome to the
// trust and risk trackers. On success it builds the terminal result; on
// failure it returns the invoker's error for the caller to swallow or
// surface.
func (o *Orchestrator) attempt(ctx context.Context, span trace.Span, task, prepared *types.Task,
	decision *routing.RoutingDecision, invoker inference.Invoker, start time.Time, cfg Config, path string,
) (*DelegationResult, error) {
	agentID := decision.AgentID

	if err := o.deps.Registry.IncrementWorkload(agentID, 1); err != nil {
		o.logger.Debug("workload reserve failed",
			zap.String("agent_id", agentID), zap.Error(err))
	}
	defer func() {
		if err := o.deps.Registry.IncrementWorkload(agentID, -1); err != nil {
			o.logger.Debug("workload release failed",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	}()

	invokeStart := o.now()
	payload, err := invoker.Invoke(ctx, agentID, prepared)
	latencyMs := durationMs(o.now().Sub(invokeStart))

	o.observe(task, agentID, err == nil, latencyMs)
	if err != nil {
		return nil, err
	}

	duration := durationMs(o.now().Sub(start))
	result := &DelegationResult{
		TaskID:             task.ID,
		Success:            true,
		DelegatedToAgentID: agentID,
		Result:             payload,
		Metrics:            o.metrics(duration, cfg),
	}
	result.Metrics.Path = path
	span.SetAttributes(
		attribute.String("delegation.agent_id", agentID),
		attribute.String("delegation.path", path))
	o.publish(events.EventDelegationComplete, result)
	o.logger.Info("delegation completed",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agentID),
		zap.String("path", path),
		zap.Float64("duration_ms", duration))
	return result, nil
}

// observe feeds one attempt's outcome to the trust and risk trackers.
func (o *Orchestrator) observe(task *types.Task, agentID string, success bool, latencyMs float64) {
	if o.deps.Trust != nil {
		outcome := &types.TaskOutcome{
			TaskID:    task.ID,
			AgentID:   agentID,
			Success:   success,
			Timestamp: o.now(),
		}
		if err := o.deps.Trust.UpdateTrust(agentID, outcome); err != nil {
			o.logger.Warn("trust update failed",
				zap.String("agent_id", agentID), zap.Error(err))
		} else {
			o.publish(events.EventTrustUpdated, outcome)
		}
	}
	if o.deps.Risk != nil {
		o.deps.Risk.Record(&risk.Observation{
			TargetAgentID: agentID,
			Type:          risk.InteractionHandoff,
			Success:       success,
			Context:       task.Context,
			LatencyMs:     latencyMs,
			Timestamp:     o.now(),
		})
	}
}

// prepare returns the task handed to invokers: a copy whose context is
// compressed when a compressor is attached. Compression failures are
// logged and the original context is sent instead.
func (o *Orchestrator) prepare(task *types.Task) *types.Task {
	if o.deps.Compressor == nil || len(task.Context) == 0 {
		return task
	}

	raw, err := json.Marshal(task.Context)
	if err != nil {
		o.logger.Warn("context encode failed, sending uncompressed",
			zap.String("task_id", task.ID), zap.Error(err))
		return task
	}
	framed, err := o.deps.Compressor.Compress(string(raw))
	if err != nil {
		o.logger.Warn("context compression failed, sending uncompressed",
			zap.String("task_id", task.ID), zap.Error(err))
		return task
	}

	clone := *task
	clone.Context = map[string]any{contextKeyCompressed: framed}
	return &clone
}

func (o *Orchestrator) fail(span trace.Span, task *types.Task, start time.Time, cfg Config, errMsg string) *DelegationResult {
	duration := durationMs(o.now().Sub(start))
	result := &DelegationResult{
		TaskID:  task.ID,
		Success: false,
		Error:   errMsg,
		Metrics: o.metrics(duration, cfg),
	}
	span.SetStatus(codes.Error, errMsg)
	o.publish(events.EventDelegationFailed, result)
	o.logger.Warn("delegation failed",
		zap.String("task_id", task.ID),
		zap.String("error", errMsg),
		zap.Float64("duration_ms", duration))
	return result
}

func (o *Orchestrator) metrics(duration float64, cfg Config) *DelegationMetrics {
	return &DelegationMetrics{
		DurationMs:          duration,
		LatencyWithinTarget: duration < cfg.LatencyTargetMs,
	}
}

func (o *Orchestrator) fallbackInvoker() inference.Invoker {
	if o.deps.Remote != nil {
		return o.deps.Remote
	}
	return o.deps.Local
}

func (o *Orchestrator) publish(eventType events.EventType, payload any) {
	if o.deps.Publisher != nil {
		o.deps.Publisher.Publish(eventType, payload)
	}
}

func localAgents(agents []*registry.Agent) []*registry.Agent {
	locals := make([]*registry.Agent, 0, len(agents))
	for _, agent := range agents {
		if agent != nil && agent.IsLocal {
			locals = append(locals, agent)
		}
	}
	return locals
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
