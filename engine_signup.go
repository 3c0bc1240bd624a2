package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gearmarket/auth/internal/tokens"
	"github.com/gearmarket/auth/password"
)

// Signup registers a new, inactive account and dispatches its
// verification email. When the dispatch fails the account and token are
// rolled back so the email stays free for another attempt.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if err := e.checkRate(ctx, RouteSignup); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if username == "" {
		username = email[:strings.Index(email, "@")]
	}

	if violation, ok := password.CheckPolicy(req.Password); !ok {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, violation)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	account, err := e.accounts.Create(ctx, CreateAccountInput{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.inc(MetricSignupDuplicate)
			e.emit(ctx, AuditEvent{
				EventType: EventSignup,
				Email:     email,
				Success:   false,
				Error:     "duplicate email",
			})
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	token, err := e.tokens.Issue(ctx, account.ID, tokens.PurposeEmailVerification, e.cfg.Tokens.VerificationTTL)
	if err != nil {
		e.rollbackSignup(ctx, account.ID, "")
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	if err := e.mailer.Send(ctx, email, e.cfg.Mail.VerificationSubject, e.verificationBody(token)); err != nil {
		e.rollbackSignup(ctx, account.ID, token)
		e.inc(MetricSignupRollback)
		e.emit(ctx, AuditEvent{
			EventType: EventSignup,
			AccountID: account.ID,
			Email:     email,
			Success:   false,
			Error:     "mail dispatch failed",
		})
		return nil, fmt.Errorf("%w: %v", ErrMailDispatch, err)
	}

	e.inc(MetricSignupSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventSignup,
		AccountID: account.ID,
		Email:     email,
		Success:   true,
	})

	return &SignupResult{Email: email}, nil
}

// rollbackSignup compensates a half-done signup. Both deletes are
// best-effort; a failure leaves an inactive account that can never log
// in, which is safe to garbage-collect later.
func (e *Engine) rollbackSignup(ctx context.Context, accountID, token string) {
	if token != "" {
		if err := e.tokens.Remove(ctx, token); err != nil {
			e.logger.Printf("signup rollback: token removal failed: %v", err)
		}
	}
	if err := e.accounts.Delete(ctx, accountID); err != nil {
		e.logger.Printf("signup rollback: account delete failed: %v", err)
	}
}

func (e *Engine) verificationBody(token string) string {
	link := token
	if e.cfg.Mail.VerifyLinkBase != "" {
		link = e.cfg.Mail.VerifyLinkBase + token
	}
	return "Welcome to GearMarket!\n\nPlease verify your email address by visiting:\n\n" + link + "\n\nThe link expires in 24 hours."
}
