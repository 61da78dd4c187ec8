// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for every zone.
//
// Loggers are plain *zap.Logger values built from config; request-scoped
// loggers carry the chi request ID. Metrics live on a private registry so
// tests can build independent instances.
package observability
