// Package prometheus exposes the engine's in-process counters in the
// Prometheus text exposition format, without depending on the Prometheus
// client library.
package prometheus
