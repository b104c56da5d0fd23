package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/types"
)

// BreakerConfig configures the circuit breaker wrap.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures uint32 `json:"max_failures" yaml:"max_failures"`

	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Interval is the closed-state period after which counts reset.
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		Interval:    60 * time.Second,
	}
}

// BreakerInvoker wraps an Invoker with a circuit breaker. An open circuit
// fails fast with a retryable SERVICE_UNAVAILABLE error so the orchestrator
// falls back immediately instead of waiting out a dead backend.
type BreakerInvoker struct {
	name    string
	inner   Invoker
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

// NewBreakerInvoker wraps inner. Config and logger may be nil.
func NewBreakerInvoker(name string, inner Invoker, config *BreakerConfig, logger *zap.Logger) *BreakerInvoker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultBreakerConfig().Timeout
	}
	if config.Interval <= 0 {
		config.Interval = DefaultBreakerConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "breaker_invoker"))

	maxFailures := config.MaxFailures
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "inference:" + name,
		MaxRequests: 1,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BreakerInvoker{
		name:    name,
		inner:   inner,
		breaker: cb,
		logger:  log,
	}
}

// Invoke routes the call through the breaker.
func (b *BreakerInvoker) Invoke(ctx context.Context, agentID string, task *types.Task) (any, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Invoke(ctx, agentID, task)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.NewError(types.ErrServiceUnavailable,
				fmt.Sprintf("inference circuit open for %s", b.name)).
				WithCause(err).
				WithRetryable(true).
				WithAgentID(agentID)
		}
		return nil, err
	}
	return result, nil
}

// State exposes the breaker state for monitoring.
func (b *BreakerInvoker) State() gobreaker.State {
	return b.breaker.State()
}

// Counts exposes the breaker counts for monitoring.
func (b *BreakerInvoker) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
