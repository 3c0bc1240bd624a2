package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/gearmarket/auth/internal/tokens"
)

// VerifyEmail activates the account behind a verification token and, on
// first success, consumes the token and issues a token pair. Verifying
// an already-active account reports AlreadyVerified without spending the
// token.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*VerifyEmailResult, error) {
	resolved, err := e.tokens.Resolve(ctx, token, tokens.PurposeEmailVerification)
	if err != nil {
		return nil, e.mapTokenErr(err, MetricEmailVerifyFailure)
	}

	account, err := e.accounts.GetByID(ctx, resolved.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	if account.Active {
		return &VerifyEmailResult{AlreadyVerified: true, Account: account}, nil
	}

	activated, err := e.accounts.Activate(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	if _, err := e.tokens.Consume(ctx, token, tokens.PurposeEmailVerification); err != nil {
		return nil, e.mapTokenErr(err, MetricEmailVerifyFailure)
	}

	pair, err := e.mintPair(ctx, activated)
	if err != nil {
		return nil, err
	}

	e.inc(MetricEmailVerified)
	e.emit(ctx, AuditEvent{
		EventType: EventEmailVerified,
		AccountID: activated.ID,
		Email:     activated.Email,
		Success:   true,
	})

	return &VerifyEmailResult{Account: activated, Tokens: pair}, nil
}

// mapTokenErr translates token service errors into the engine's
// sentinels and counts the failure.
func (e *Engine) mapTokenErr(err error, failureMetric MetricID) error {
	switch {
	case errors.Is(err, tokens.ErrNotFound),
		errors.Is(err, tokens.ErrSecretMismatch),
		errors.Is(err, tokens.ErrPurposeMismatch):
		e.inc(failureMetric)
		return ErrInvalidOrExpiredToken
	case errors.Is(err, tokens.ErrAlreadyConsumed):
		e.inc(failureMetric)
		return ErrAlreadyConsumed
	default:
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}
}
