// Package auth implements the account-lifecycle and access-control core of
// the gearmarket web application: registration with email verification,
// credentialed login with brute-force lockout and route-level rate limiting,
// access/refresh token issuance and rotation, password reset, and external
// identity-provider login.
//
// The Engine orchestrates the flows; backing state lives in Redis (token
// single-use records, attempt counters, refresh sessions) with a durable SQL
// fallback for verification tokens. Construct an Engine with the Builder:
//
//	engine, err := auth.New().
//		WithRedis(rdb).
//		WithAccountStore(accounts).
//		WithDurableTokens(archive).
//		WithMailer(mailer).
//		Build()
package auth
