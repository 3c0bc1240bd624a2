package tokens

import "errors"

var (
	// ErrNotFound is returned when no live record exists for a token.
	ErrNotFound = errors.New("verification token not found")
	// ErrSecretMismatch is returned when the token secret does not hash
	// to the stored digest.
	ErrSecretMismatch = errors.New("verification token secret mismatch")
	// ErrPurposeMismatch is returned when a token is presented against
	// the wrong flow.
	ErrPurposeMismatch = errors.New("verification token purpose mismatch")
	// ErrAlreadyConsumed is returned when the token was already spent.
	ErrAlreadyConsumed = errors.New("verification token already consumed")
	// ErrRedisUnavailable wraps redis transport faults.
	ErrRedisUnavailable = errors.New("token redis unavailable")
	// ErrDurableUnavailable wraps durable archive faults.
	ErrDurableUnavailable = errors.New("token archive unavailable")
)
