// Package jwt issues and validates the short-lived access tokens handed
// out on login, refresh, and email verification. Tokens are signed with
// HS256 or ed25519 and carry the account identity claims consumers need
// without a database round trip.
package jwt
