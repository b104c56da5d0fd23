// Package delegation is the top-level entry point of the swarm: it takes a
// task, routes it, executes it through an inference collaborator, and
// returns a uniform result.
//
// Delegation is a small state machine. An empty registry terminates
// immediately with a failed result and no side effects. Otherwise a
// local-first attempt runs over local-capable agents when enabled; any
// collaborator failure there is swallowed and the task falls back to a
// consensus attempt over the entire pool. Only the fallback's failure
// surfaces to the caller, as data on the result rather than an error
// return. Trust and risk trackers absorb every attempt's outcome so the
// next routing pass sees it.
package delegation
