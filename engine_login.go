package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gearmarket/auth/internal"
	"github.com/gearmarket/auth/internal/guard"
)

// Login authenticates an email/password pair and issues a token pair.
// Failures against a known identity feed the attempt guard; a locked
// identity is rejected before the password is even looked at.
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	if err := e.checkRate(ctx, RouteLogin); err != nil {
		e.inc(MetricLoginRateLimited)
		return nil, err
	}

	email = normalizeEmail(email)

	if err := e.guard.Check(ctx, email); err != nil {
		var locked *guard.LockedError
		if errors.As(err, &locked) {
			e.inc(MetricLoginLocked)
			e.emit(ctx, AuditEvent{
				EventType: EventLoginLocked,
				Email:     email,
				Success:   false,
			})
			return nil, &LockoutError{RetryAfter: locked.RetryAfter}
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.loginFailure(ctx, email, "unknown account")
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	if !account.Active {
		// Not a credential failure: the guard does not count it.
		e.emit(ctx, AuditEvent{
			EventType: EventLogin,
			AccountID: account.ID,
			Email:     email,
			Success:   false,
			Error:     "account inactive",
		})
		return nil, ErrAccountInactive
	}

	ok, err := e.hasher.Verify(pass, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}
	if !ok {
		return nil, e.loginFailure(ctx, email, "bad password")
	}

	if err := e.guard.RecordSuccess(ctx, email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	e.afterLogin(ctx, account, pass)

	pair, err := e.mintPair(ctx, account)
	if err != nil {
		return nil, err
	}

	e.inc(MetricLoginSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventLogin,
		AccountID: account.ID,
		Email:     email,
		Success:   true,
	})

	return pair, nil
}

func (e *Engine) loginFailure(ctx context.Context, email, reason string) error {
	if err := e.guard.RecordFailure(ctx, email); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	e.inc(MetricLoginFailure)
	e.emit(ctx, AuditEvent{
		EventType: EventLogin,
		Email:     email,
		Success:   false,
		Error:     reason,
	})

	return ErrInvalidCredentials
}

// afterLogin records the login timestamp and opportunistically upgrades
// the stored hash when the cost parameters moved. Both are best-effort.
func (e *Engine) afterLogin(ctx context.Context, account *Account, pass string) {
	if err := e.accounts.TouchLogin(ctx, account.ID, time.Now()); err != nil {
		e.logger.Printf("login: touch failed for %s: %v", account.ID, err)
	}

	if pass == "" {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needs {
		return
	}
	rehash, err := e.hasher.Hash(pass)
	if err != nil {
		return
	}
	if err := e.accounts.UpdatePasswordHash(ctx, account.ID, rehash); err != nil {
		e.logger.Printf("login: hash upgrade failed for %s: %v", account.ID, err)
	}
}

// ExternalAuthURL returns the provider's authorization URL for the given
// anti-forgery state.
func (e *Engine) ExternalAuthURL(state string) (string, error) {
	if e.identity == nil {
		return "", fmt.Errorf("%w: no provider configured", ErrExternalProvider)
	}
	return e.identity.AuthURL(state), nil
}

// ExternalLogin exchanges an authorization code with the identity
// provider and logs the verified identity in, creating an active account
// on first contact. The attempt guard and password never participate.
func (e *Engine) ExternalLogin(ctx context.Context, code string) (*TokenPair, error) {
	if e.identity == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrExternalProvider)
	}

	identity, err := e.identity.Exchange(ctx, code)
	if err != nil {
		e.inc(MetricExternalLoginFailure)
		e.emit(ctx, AuditEvent{
			EventType: EventExternalLogin,
			Success:   false,
			Error:     "exchange failed",
		})
		return nil, fmt.Errorf("%w: %v", ErrExternalProvider, err)
	}

	email := normalizeEmail(identity.Email)
	if email == "" {
		e.inc(MetricExternalLoginFailure)
		return nil, fmt.Errorf("%w: provider returned no email", ErrExternalProvider)
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrAccountNotFound):
		account, err = e.createExternalAccount(ctx, email, identity.DisplayName)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	// The provider vouches for the email, so a pending account becomes
	// active here.
	if !account.Active {
		account, err = e.accounts.Activate(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
		}
	}

	e.afterLogin(ctx, account, "")

	pair, err := e.mintPair(ctx, account)
	if err != nil {
		return nil, err
	}

	e.inc(MetricExternalLoginSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventExternalLogin,
		AccountID: account.ID,
		Email:     email,
		Success:   true,
	})

	return pair, nil
}

// createExternalAccount provisions an account for a provider-verified
// identity. The password slot gets an unguessable random credential so
// password login stays effectively disabled until a reset.
func (e *Engine) createExternalAccount(ctx context.Context, email, displayName string) (*Account, error) {
	secret, err := internal.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}
	hash, err := e.hasher.Hash(internal.EncodeToken(internal.TokenID{}, secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	username := strings.TrimSpace(displayName)
	if username == "" {
		username = email[:strings.Index(email, "@")]
	}

	account, err := e.accounts.Create(ctx, CreateAccountInput{
		Email:         email,
		Username:      username,
		PasswordHash:  hash,
		Active:        true,
		EmailVerified: true,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a create race; the winner's account is fine to use.
			return e.accounts.GetByEmail(ctx, email)
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	return account, nil
}
