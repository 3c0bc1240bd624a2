package auth

import (
	"errors"
	"time"
)

// Config holds all engine tuning parameters. Zero values are filled by
// defaultConfig; Validate rejects combinations the engine cannot run with.
type Config struct {
	JWT       JWTConfig
	Refresh   RefreshConfig
	Password  PasswordConfig
	Tokens    TokenConfig
	Guard     GuardConfig
	RateLimit RateLimitConfig
	Mail      MailConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// JWTConfig configures the stateless access token.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// RefreshConfig configures the revocable refresh token store.
type RefreshConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// PasswordConfig holds the argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// TokenConfig configures the verification token service.
//
// RequireDurable makes a durable-store write failure abort issuance instead
// of degrading to ephemeral-only with a logged warning.
type TokenConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	RequireDurable  bool
}

// GuardConfig configures the per-identity login attempt guard.
//
// FailOpen controls behavior when the counter backend is unreachable: the
// guard logs the fault and treats the identity as unlocked for the attempt.
// This trades strict brute-force protection for availability.
type GuardConfig struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	LockDuration time.Duration
	FailOpen     bool
}

// RateRule is a fixed-window request budget for one route.
type RateRule struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig maps route names to their request budgets. Routes without
// a rule are not throttled.
type RateLimitConfig struct {
	Enabled bool
	Rules   map[string]RateRule
}

// MailConfig carries the link bases and subjects for outbound mail. Link
// bases are joined with the raw token to form the clickable URL.
type MailConfig struct {
	VerifyLinkBase      string
	ResetLinkBase       string
	VerificationSubject string
	ResetSubject        string
}

// AuditConfig configures the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Route names understood by the rate limiter and the HTTP layer.
const (
	RouteLogin         = "login"
	RouteSignup        = "signup"
	RoutePasswordReset = "password-reset"
)

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "gearmarket",
		},
		Refresh: RefreshConfig{
			TTL:         7 * 24 * time.Hour,
			RedisPrefix: "ars",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Tokens: TokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
		Guard: GuardConfig{
			Enabled:      true,
			Threshold:    5,
			Window:       time.Hour,
			LockDuration: 30 * time.Minute,
			FailOpen:     true,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rules: map[string]RateRule{
				RouteLogin:         {Limit: 5, Window: time.Minute},
				RoutePasswordReset: {Limit: 3, Window: time.Hour},
				RouteSignup:        {Limit: 20, Window: time.Hour},
			},
		},
		Mail: MailConfig{
			VerificationSubject: "Verify your email",
			ResetSubject:        "Password Reset Request",
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt access TTL must be positive")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("refresh TTL must be positive")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Tokens.VerificationTTL <= 0 || c.Tokens.ResetTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Guard.Enabled {
		if c.Guard.Threshold <= 0 {
			return errors.New("guard threshold must be positive")
		}
		if c.Guard.Window <= 0 || c.Guard.LockDuration <= 0 {
			return errors.New("guard window and lock duration must be positive")
		}
	}
	if c.RateLimit.Enabled {
		for route, rule := range c.RateLimit.Rules {
			if rule.Limit <= 0 || rule.Window <= 0 {
				return errors.New("invalid rate rule for route " + route)
			}
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[string]RateRule, len(cfg.RateLimit.Rules))
		for route, rule := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[route] = rule
		}
	}
	out.JWT.PrivateKey = append([]byte(nil), cfg.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), cfg.JWT.PublicKey...)
	return out
}
