package auth

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRequiresBackends(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testEngineConfig()

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("build without redis must fail")
	}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); err == nil {
		t.Fatal("build without account store must fail")
	}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithAccountStore(newMemAccounts()).Build(); err == nil {
		t.Fatal("build without mailer must fail")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testEngineConfig()
	cfg.JWT.AccessTTL = 0

	_, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(newMemAccounts()).
		WithMailer(&memMailer{}).
		Build()
	if err == nil {
		t.Fatal("build with zero access TTL must fail")
	}
}

func TestConfigValidate(t *testing.T) {
	base := DefaultConfig()
	base.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	if err := base.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"refresh below access", func(c *Config) { c.Refresh.TTL = time.Minute; c.JWT.AccessTTL = time.Hour }},
		{"zero verification TTL", func(c *Config) { c.Tokens.VerificationTTL = 0 }},
		{"zero guard threshold", func(c *Config) { c.Guard.Threshold = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimit.Rules[RouteLogin] = RateRule{Limit: 0, Window: time.Minute} }},
	}
	for _, tc := range cases {
		cfg := cloneConfig(base)
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
