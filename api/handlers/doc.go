// Package handlers implements the HTTP request handlers of the
// swarmroute operational API.
//
// SwarmHandler serves the agent, delegation, trust, and risk endpoints
// on top of a swarmroute.Core; HealthHandler serves liveness, readiness,
// and version endpoints with pluggable dependency checks. All handlers
// follow the standard net/http signature and are registered on a
// method-pattern mux by cmd/swarmroute.
//
// Responses share one JSON envelope (Response) with a success flag,
// payload, structured error, and timestamp. Error codes map to HTTP
// status automatically; request bodies are decoded in strict mode with
// a 1 MB cap.
package handlers
