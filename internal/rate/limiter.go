package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "arl"

// Rule bounds one route to Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Limiter enforces per-route fixed windows using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	rules  map[string]Rule
	prefix string
}

// New creates a [Limiter] backed by the given Redis client. Routes
// without a rule are unlimited.
func New(redisClient redis.UniversalClient, rules map[string]Rule) *Limiter {
	return &Limiter{
		redis:  redisClient,
		rules:  rules,
		prefix: keyPrefix,
	}
}

func (l *Limiter) key(client, route string) string {
	return l.prefix + ":" + route + ":" + client
}

// Allow consumes one unit of the (client, route) budget. Over-limit
// requests get an [ExceededError] with the remaining window; counting a
// denied request does not extend the window.
func (l *Limiter) Allow(ctx context.Context, client, route string) error {
	rule, ok := l.rules[route]
	if !ok || rule.Limit <= 0 {
		return nil
	}

	key := l.key(client, route)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: the TTL is set once, by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, rule.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(rule.Limit) {
		retry := rule.Window
		if pttl, err := l.redis.PTTL(ctx, key).Result(); err == nil && pttl > 0 {
			retry = pttl
		}
		return &ExceededError{Route: route, RetryAfter: retry}
	}

	return nil
}
