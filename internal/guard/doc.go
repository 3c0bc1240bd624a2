// Package guard tracks failed login attempts per identity and locks the
// identity out once a threshold of failures lands inside the window.
// Locks expire lazily through redis TTLs. The guard can be configured to
// fail open so a counter outage degrades brute-force protection instead
// of taking logins down with it.
package guard
