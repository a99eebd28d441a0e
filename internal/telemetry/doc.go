// Package telemetry wraps OpenTelemetry SDK initialization. When
// tracing is disabled no exporter is created and the global provider
// stays noop; metrics are handled separately via prometheus.
package telemetry
