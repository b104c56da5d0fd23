// Package telemetry wraps OpenTelemetry SDK initialization for the
// routing core. Init wires OTLP gRPC exporters for traces and metrics,
// attaches service identity to the resource, and installs the providers
// globally so any component can open spans via otel.Tracer.
//
// When telemetry is disabled in configuration, Init returns noop
// providers without connecting to any external service, and Shutdown
// becomes a no-op. This package is internal and not part of the public
// API surface.
package telemetry
