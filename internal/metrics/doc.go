// Package metrics provides prometheus metrics collection.
// This package is internal and should not be imported by external projects.
//
// Collector registers every vector through promauto under one namespace
// and exposes typed Record/Set methods per concern: delegations by path
// and outcome, routing decisions by strategy, cache hits and misses,
// trust and risk gauges per agent, pool size, and the HTTP request
// vectors used by the server middleware. Recording is lock-free; the
// prometheus vectors handle concurrency themselves.
package metrics
