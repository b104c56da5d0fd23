// Package server manages HTTP server lifecycle for the routing core:
// non-blocking startup, graceful shutdown, and signal-driven teardown.
//
// Manager wraps net/http.Server with an explicit listener so callers
// can bind to port 0 in tests and read the resolved address back via
// ListenAddr. Start and StartTLS serve from a background goroutine;
// Shutdown drains in-flight requests within the configured timeout;
// WaitForShutdown blocks on SIGINT/SIGTERM or an asynchronous serve
// error, then shuts down. The API server and the metrics listener are
// both run through this type.
package server
