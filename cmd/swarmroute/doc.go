// Command swarmroute runs the trust-aware task routing service.
//
// The binary wraps a swarmroute.Core with an operational HTTP API, a
// dedicated prometheus metrics listener, and database migration
// subcommands. Configuration loads from defaults, then an optional YAML
// file, then SWARMROUTE_* environment variables.
//
// Subcommands:
//
//	swarmroute serve                        start the service
//	swarmroute serve --config config.yaml   with a config file
//	swarmroute migrate up                   apply pending migrations
//	swarmroute migrate status               show migration status
//	swarmroute health                       probe a running server
//	swarmroute version                      show build metadata
//
// The HTTP middleware chain applies, outermost first: panic recovery,
// request IDs, security headers, request logging, CORS, prometheus
// metrics, OpenTelemetry tracing, per-IP rate limiting, and, when auth
// is enabled, bearer-token auth followed by per-tenant rate limiting.
// Version, BuildTime, and GitCommit are injected via ldflags.
package main
