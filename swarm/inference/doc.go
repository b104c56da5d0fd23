// Package inference defines how the orchestrator hands a task to an agent
// for actual execution.
//
// The core never executes work itself. It calls an Invoker, treats any
// error as recoverable, and falls back to other agents. The HTTP invoker is
// the production adapter; BreakerInvoker wraps any invoker with a circuit
// breaker so a dead backend fails fast instead of eating the delegation
// latency budget on every attempt.
package inference
