// Package routing picks the best agent for a task.
//
// The scorer ranks agents on expertise match, workload headroom, and a
// risk-derived factor, optionally swapping in a trust-aware formula when a
// trust view is supplied. The ranking pass is synchronous and touches no
// I/O: trust and risk arrive as point-in-time score maps, and recent
// decisions are replayed from a bounded in-memory cache as a stickiness
// optimization.
package routing
