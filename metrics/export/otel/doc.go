// Package otel exposes the engine's in-process counters through an
// OpenTelemetry meter.
package otel
