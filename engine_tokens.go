package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/gearmarket/auth/internal"
	"github.com/gearmarket/auth/jwt"
	"github.com/gearmarket/auth/session"
)

// Refresh rotates a refresh token: the presented secret is retired and
// blacklisted, and a new access/refresh pair comes back. Replaying a
// retired token reports ErrTokenRevoked and revokes the whole session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	sessionID, secret, err := internal.DecodeToken(refreshToken)
	if err != nil {
		e.inc(MetricRefreshFailure)
		return nil, ErrInvalidOrExpiredToken
	}

	nextSecret, err := internal.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	sess, err := e.sessions.Rotate(ctx, sessionID.String(), internal.HashSecret(secret), internal.HashSecret(nextSecret))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRevoked):
			e.inc(MetricRefreshReuseDetected)
			e.emit(ctx, AuditEvent{
				EventType: EventRefreshReuse,
				Success:   false,
			})
			return nil, ErrTokenRevoked
		case errors.Is(err, session.ErrNotFound):
			e.inc(MetricRefreshFailure)
			return nil, ErrInvalidOrExpiredToken
		default:
			return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
		}
	}

	access, err := e.jwt.CreateAccess(sess.AccountID, sess.Email, sess.Username, sess.EmailVerified)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	e.inc(MetricRefreshSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventRefresh,
		AccountID: sess.AccountID,
		Success:   true,
	})

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeToken(sessionID, nextSecret),
	}, nil
}

// Logout revokes the refresh session behind the token. Logging out an
// already-dead session succeeds; only a malformed token is an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	sessionID, secret, err := internal.DecodeToken(refreshToken)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	if err := e.sessions.Revoke(ctx, sessionID.String(), internal.HashSecret(secret)); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	e.inc(MetricLogout)
	e.emit(ctx, AuditEvent{
		EventType: EventLogout,
		Success:   true,
	})

	return nil
}

// VerifyAccess validates an access token signature-first and returns the
// identity it asserts. No store is consulted.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.jwt.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrTokenSignatureInvalid
		}
		return nil, ErrInvalidOrExpiredToken
	}

	return &AuthResult{
		AccountID:     claims.UID,
		Email:         claims.Email,
		Username:      claims.Username,
		EmailVerified: claims.EmailVerified,
	}, nil
}
