// Command authd runs the GearMarket authentication service: HTTP API in
// front of the auth engine, redis for sessions and counters, sqlite for
// accounts and the token archive.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/gearmarket/auth"
	"github.com/gearmarket/auth/httpapi"
	"github.com/gearmarket/auth/identity"
	"github.com/gearmarket/auth/mailer"
	"github.com/gearmarket/auth/store"
)

type config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	PublicURL  string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"authd.db"`

	JWTSecret    string        `env:"JWT_SECRET,required"`
	JWTSigning   string        `env:"JWT_SIGNING_METHOD" envDefault:"hs256"`
	JWTPublicKey string        `env:"JWT_PUBLIC_KEY"`
	AccessTTL    time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL   time.Duration `env:"REFRESH_TTL" envDefault:"168h"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"no-reply@gearmarket.example"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	SentryDSN string `env:"SENTRY_DSN"`

	SecureCookies bool `env:"SECURE_COOKIES" envDefault:"false"`
}

func main() {
	logger := log.New(os.Stderr, "authd ", log.LstdFlags|log.Lmsgprefix)

	// Missing .env is fine; real deployments use the process environment.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatalf("config: %v", err)
	}

	sentryEnabled := cfg.SentryDSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Fatalf("sentry init: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabasePath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	ctx := context.Background()
	if err := store.CreateTables(ctx, db); err != nil {
		logger.Fatalf("create tables: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("redis ping: %v", err)
	}

	engineCfg := auth.DefaultConfig()
	engineCfg.JWT.PrivateKey = []byte(cfg.JWTSecret)
	engineCfg.JWT.SigningMethod = cfg.JWTSigning
	if cfg.JWTPublicKey != "" {
		engineCfg.JWT.PublicKey = []byte(cfg.JWTPublicKey)
	}
	engineCfg.JWT.AccessTTL = cfg.AccessTTL
	engineCfg.Refresh.TTL = cfg.RefreshTTL
	engineCfg.Mail.VerifyLinkBase = cfg.PublicURL + "/v1/verify-email/"
	engineCfg.Mail.ResetLinkBase = cfg.PublicURL + "/v1/password-reset/"
	engineCfg.Metrics.Enabled = true
	engineCfg.Audit.Enabled = true

	var outbound auth.Mailer
	if cfg.SMTPHost != "" {
		smtp, err := mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			logger.Fatalf("smtp: %v", err)
		}
		outbound = smtp
	} else {
		logger.Println("SMTP_HOST not set, logging outbound mail instead of sending")
		outbound = mailer.NewLog(logger)
	}

	builder := auth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountStore(store.NewAccounts(db)).
		WithDurableTokens(store.NewTokenArchive(db)).
		WithMailer(outbound).
		WithAuditSink(auth.NewJSONWriterSink(os.Stdout)).
		WithLogger(logger)

	if cfg.GoogleClientID != "" {
		google, err := identity.NewGoogle(identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.PublicURL + "/v1/external/callback",
		})
		if err != nil {
			logger.Fatalf("google provider: %v", err)
		}
		builder = builder.WithIdentityProvider(google)
	}

	engine, err := builder.Build()
	if err != nil {
		logger.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	server := httpapi.NewServer(engine, httpapi.Config{
		SecureCookies: cfg.SecureCookies,
		SentryEnabled: sentryEnabled,
		Logger:        logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(cfg.ListenAddr)
	}()
	logger.Printf("listening on %s", cfg.ListenAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Printf("received %s, shutting down", sig)
		if err := server.Shutdown(); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("listen: %v", err)
		}
	}
}
