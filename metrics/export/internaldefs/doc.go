// Package internaldefs holds the shared counter definitions used by the
// metrics exporters. It exists so the prometheus and otel exporters
// agree on names without depending on each other.
package internaldefs
