// Package rate implements a redis-backed fixed-window request limiter
// keyed by (client, route) with per-route rules. The limiter is
// fail-closed: a backend fault denies the request rather than waving
// traffic through.
package rate
