// Package tokens implements the single-use verification token service
// behind email verification and password reset. Tokens are issued with a
// purpose and a TTL, written to redis as the primary store and to an
// optional durable archive, and consumed at most once even under
// concurrent confirmation attempts.
package tokens
