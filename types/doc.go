// Package types defines the lowest-level shared types of the swarmroute
// framework: the Task unit of work, the structured Error used across all
// components, and context propagation helpers for request identity.
//
// The types package has no internal dependencies, so domain packages
// (registry, routing, trust, risk, delegation) can all import it without
// circular imports.
package types
