package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/gearmarket/auth/internal/tokens"
	"github.com/gearmarket/auth/password"
)

// PasswordResetRequest issues a reset token and mails it. The response
// is identical whether or not the email has an account, so the endpoint
// cannot be used to probe for registered addresses.
func (e *Engine) PasswordResetRequest(ctx context.Context, email string) error {
	if err := e.checkRate(ctx, RoutePasswordReset); err != nil {
		return err
	}

	email = normalizeEmail(email)

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.emit(ctx, AuditEvent{
				EventType: EventPasswordResetReq,
				Email:     email,
				Success:   false,
				Error:     "unknown account",
			})
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	token, err := e.tokens.Issue(ctx, account.ID, tokens.PurposePasswordReset, e.cfg.Tokens.ResetTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	if err := e.mailer.Send(ctx, email, e.cfg.Mail.ResetSubject, e.resetBody(token)); err != nil {
		if rmErr := e.tokens.Remove(ctx, token); rmErr != nil {
			e.logger.Printf("password reset: token removal failed: %v", rmErr)
		}
		// Surfacing the fault only for registered addresses would tell a
		// caller which emails have accounts. Swallow it like the unknown
		// address branch does.
		e.logger.Printf("password reset: mail dispatch failed: %v", err)
		e.emit(ctx, AuditEvent{
			EventType: EventPasswordResetReq,
			AccountID: account.ID,
			Email:     email,
			Success:   false,
			Error:     "mail dispatch failed",
		})
		return nil
	}

	e.inc(MetricPasswordResetRequest)
	e.emit(ctx, AuditEvent{
		EventType: EventPasswordResetReq,
		AccountID: account.ID,
		Email:     email,
		Success:   true,
	})

	return nil
}

// PasswordResetConfirm spends the reset token and installs the new
// password. The token is consumed before the same-password check, so a
// reuse rejection still burns it.
func (e *Engine) PasswordResetConfirm(ctx context.Context, token, newPassword string) error {
	if violation, ok := password.CheckPolicy(newPassword); !ok {
		return fmt.Errorf("%w: %s", ErrWeakPassword, violation)
	}

	resolved, err := e.tokens.Consume(ctx, token, tokens.PurposePasswordReset)
	if err != nil {
		return e.mapTokenErr(err, MetricPasswordResetFailure)
	}

	account, err := e.accounts.GetByID(ctx, resolved.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	same, err := e.hasher.Verify(newPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}
	if same {
		e.inc(MetricPasswordResetFailure)
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	e.inc(MetricPasswordResetSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventPasswordReset,
		AccountID: account.ID,
		Email:     account.Email,
		Success:   true,
	})

	return nil
}

func (e *Engine) resetBody(token string) string {
	link := token
	if e.cfg.Mail.ResetLinkBase != "" {
		link = e.cfg.Mail.ResetLinkBase + token
	}
	return "We received a request to reset your GearMarket password.\n\nUse this link to choose a new one:\n\n" + link + "\n\nThe link expires in 1 hour. If you did not ask for this, ignore this email."
}
