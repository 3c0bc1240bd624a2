// Package middleware exposes a net/http adapter for services that embed
// the auth engine directly instead of fronting it with the HTTP API.
//
// [Guard] reads the Authorization header, verifies the bearer access
// token through [auth.Engine.VerifyAccess], and injects the asserted
// identity into the request context. All decisions are delegated to the
// engine; this package only translates HTTP semantics.
package middleware
