package auth

import (
	"errors"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/gearmarket/auth/internal/guard"
	"github.com/gearmarket/auth/internal/rate"
	"github.com/gearmarket/auth/internal/tokens"
	"github.com/gearmarket/auth/jwt"
	"github.com/gearmarket/auth/password"
	"github.com/gearmarket/auth/session"
)

// Builder assembles an [Engine] from its dependencies. Redis, an account
// store, and a mailer are mandatory; everything else has defaults.
type Builder struct {
	config Config

	redis    redis.UniversalClient
	accounts AccountStore
	mailer   Mailer
	identity IdentityProvider
	durable  tokens.Durable

	auditSink AuditSink
	logger    *log.Logger

	built bool
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Missing values are not
// re-defaulted; start from DefaultConfig when overriding selectively.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// DefaultConfig exposes the built-in defaults for callers that tweak a
// few fields before WithConfig.
func DefaultConfig() Config {
	return defaultConfig()
}

// WithRedis sets the redis client behind the token, session, guard, and
// rate limiter stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the durable credential store.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer sets the outbound mail dispatcher.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithIdentityProvider enables external-identity login.
func (b *Builder) WithIdentityProvider(provider IdentityProvider) *Builder {
	b.identity = provider
	return b
}

// WithDurableTokens archives verification tokens so consumption survives
// a redis flush.
func (b *Builder) WithDurableTokens(durable tokens.Durable) *Builder {
	b.durable = durable
	return b
}

// WithAuditSink routes audit events somewhere other than the void.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLogger sets the logger used for degraded-mode warnings.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and wires the engine. A builder
// builds once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store is required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(b.config.JWT.SigningMethod),
		PrivateKey:    b.config.JWT.PrivateKey,
		PublicKey:     b.config.JWT.PublicKey,
		Issuer:        b.config.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		cfg:      b.config,
		accounts: b.accounts,
		mailer:   b.mailer,
		identity: b.identity,
		hasher:   hasher,
		jwt:      jwtManager,
		tokens:   tokens.NewStore(b.redis, b.durable, b.config.Tokens.RequireDurable, logger),
		sessions: session.NewStore(b.redis, b.config.Refresh.RedisPrefix),
		guard: guard.New(b.redis, guard.Config{
			Enabled:      b.config.Guard.Enabled,
			Threshold:    b.config.Guard.Threshold,
			Window:       b.config.Guard.Window,
			LockDuration: b.config.Guard.LockDuration,
			FailOpen:     b.config.Guard.FailOpen,
		}, logger),
		audit:   newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics: NewMetrics(b.config.Metrics),
		logger:  logger,
	}

	if b.config.RateLimit.Enabled {
		rules := make(map[string]rate.Rule, len(b.config.RateLimit.Rules))
		for route, rule := range b.config.RateLimit.Rules {
			rules[route] = rate.Rule{Limit: rule.Limit, Window: rule.Window}
		}
		engine.limiter = rate.New(b.redis, rules)
	}

	b.built = true
	return engine, nil
}
