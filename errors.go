package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateEmail is returned by Signup when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrWeakPassword is returned when a password fails the strength policy.
	ErrWeakPassword = errors.New("password does not meet strength policy")
	// ErrInvalidCredentials is returned by Login on a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidEmail is returned by Signup when the email address is malformed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrAccountLocked is returned while a login lockout is in effect.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned when an unverified account attempts to log in.
	ErrAccountInactive = errors.New("account pending email verification")
	// ErrAccountNotFound is returned when an account lookup finds no record.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidOrExpiredToken is returned for unknown, malformed, or expired tokens.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrAlreadyConsumed is returned when a single-use token was already redeemed.
	ErrAlreadyConsumed = errors.New("token already consumed")
	// ErrRateLimitExceeded is returned when a route-level request budget is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrPasswordReuse is returned when a reset supplies the current password again.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrExternalProvider is returned when the identity provider exchange fails.
	ErrExternalProvider = errors.New("external identity provider error")
	// ErrTokenSignatureInvalid is returned when an access token fails signature checks.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenRevoked is returned when a revoked or rotated refresh token is presented.
	ErrTokenRevoked = errors.New("refresh token revoked")
	// ErrMailDispatch is returned when the outbound email dispatch fails.
	ErrMailDispatch = errors.New("mail dispatch failed")
	// ErrInternalFault is the generic outcome for unexpected backend failures.
	ErrInternalFault = errors.New("internal fault")
	// ErrEngineNotReady indicates the engine was used before Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockoutError carries the remaining lock duration so callers can back off.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.RetryAfter.Round(time.Second))
}

// Is reports ErrAccountLocked so errors.Is keeps working across the wrapper.
func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RateLimitError carries the window reset delay for the denied route.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

// Is reports ErrRateLimitExceeded so errors.Is keeps working across the wrapper.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
