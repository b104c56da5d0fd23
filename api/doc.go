// Package api defines the wire types of the swarmroute HTTP API.
//
// The package holds the request and response DTOs exchanged by the
// operational endpoints: agent enrollment, task delegation, trust and
// risk queries, and delegation tuning. Handlers in api/handlers decode
// into these types and convert them to the internal domain types, so
// the JSON contract can evolve without touching registry or delegation
// internals.
//
// # Authentication
//
// When auth is enabled, endpoints other than health, version, and
// metrics require a bearer token:
//
//	Authorization: Bearer <jwt>
//
// # Base URL
//
// All operational endpoints live under /api/v1 on the main server port.
package api
