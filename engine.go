package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gearmarket/auth/internal"
	"github.com/gearmarket/auth/internal/guard"
	"github.com/gearmarket/auth/internal/rate"
	"github.com/gearmarket/auth/internal/tokens"
	"github.com/gearmarket/auth/jwt"
	"github.com/gearmarket/auth/password"
	"github.com/gearmarket/auth/session"
)

// Engine orchestrates every auth flow against its backing stores. Build
// one through [Builder]; the zero value is not usable.
type Engine struct {
	cfg      Config
	accounts AccountStore
	mailer   Mailer
	identity IdentityProvider
	hasher   *password.Hasher
	jwt      *jwt.Manager
	tokens   *tokens.Store
	sessions *session.Store
	guard    *guard.Guard
	limiter  *rate.Limiter
	audit    *auditDispatcher
	metrics  *Metrics
	logger   *log.Logger
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full
// buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) inc(id MetricID) {
	e.metrics.Inc(id)
}

// checkRate spends one unit of the route budget for the calling client.
// The limiter is fail-closed: backend faults surface as internal faults
// rather than letting the request through.
func (e *Engine) checkRate(ctx context.Context, route string) error {
	if e.limiter == nil {
		return nil
	}

	client := clientIPFromContext(ctx)
	if client == "" {
		client = "unknown"
	}

	err := e.limiter.Allow(ctx, client, route)
	if err == nil {
		return nil
	}

	var exceeded *rate.ExceededError
	if errors.As(err, &exceeded) {
		e.inc(MetricRateLimitHit)
		e.emit(ctx, AuditEvent{
			EventType: EventRateLimited,
			Success:   false,
			Metadata:  map[string]string{"route": route},
		})
		return &RateLimitError{RetryAfter: exceeded.RetryAfter}
	}

	return fmt.Errorf("%w: %v", ErrInternalFault, err)
}

// mintPair issues the access/refresh pair for a freshly authenticated
// account and registers the refresh session.
func (e *Engine) mintPair(ctx context.Context, account *Account) (*TokenPair, error) {
	access, err := e.jwt.CreateAccess(account.ID, account.Email, account.Username, account.EmailVerified)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	sessionID, err := internal.NewTokenID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	now := time.Now()
	sess := &session.Session{
		ID:            sessionID.String(),
		AccountID:     account.ID,
		Email:         account.Email,
		Username:      account.Username,
		EmailVerified: account.EmailVerified,
		RefreshHash:   internal.HashSecret(secret),
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(e.cfg.Refresh.TTL).Unix(),
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeToken(sessionID, secret),
	}, nil
}
