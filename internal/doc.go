// Package internal holds the random token material shared by the
// verification token service and the refresh session store: opaque ids,
// high-entropy secrets, and the encode/decode helpers that join them into
// the wire tokens handed to clients.
package internal
