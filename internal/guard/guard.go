package guard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "alg:att"
	lockKeyPrefix    = "alg:lock"
)

var (
	// ErrLocked is returned while an identity sits out a lockout.
	ErrLocked = errors.New("identity locked")
	// ErrRedisUnavailable is returned for backend faults when the guard
	// is configured fail-closed.
	ErrRedisUnavailable = errors.New("guard redis unavailable")
)

// LockedError carries the remaining lockout duration. It matches
// ErrLocked under errors.Is.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("identity locked, retry in %s", e.RetryAfter)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// Config tunes the failure threshold and the resulting lockout.
type Config struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	LockDuration time.Duration
	FailOpen     bool
}

// Guard counts login failures per identity in Redis.
type Guard struct {
	redis  redis.UniversalClient
	cfg    Config
	logger *log.Logger
}

// New creates a [Guard] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config, logger *log.Logger) *Guard {
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
	}
}

func attemptKey(identity string) string {
	return attemptKeyPrefix + ":" + identity
}

func lockKey(identity string) string {
	return lockKeyPrefix + ":" + identity
}

// Check rejects the identity while a lock is live. The lock is never
// extended by further attempts.
func (g *Guard) Check(ctx context.Context, identity string) error {
	if !g.cfg.Enabled {
		return nil
	}

	pttl, err := g.redis.PTTL(ctx, lockKey(identity)).Result()
	if err != nil {
		return g.backendFault("check", err)
	}
	if pttl > 0 {
		return &LockedError{RetryAfter: pttl}
	}

	return nil
}

// RecordFailure counts one failed attempt. Crossing the threshold inside
// the window arms the lock and resets the counter so a later lapse
// starts clean.
func (g *Guard) RecordFailure(ctx context.Context, identity string) error {
	if !g.cfg.Enabled {
		return nil
	}

	key := attemptKey(identity)

	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return g.backendFault("record failure", err)
	}
	if count == 1 {
		if err := g.redis.Expire(ctx, key, g.cfg.Window).Err(); err != nil {
			return g.backendFault("record failure", err)
		}
	}

	if count >= int64(g.cfg.Threshold) {
		_, err := g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lockKey(identity), 1, g.cfg.LockDuration)
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return g.backendFault("record failure", err)
		}
	}

	return nil
}

// RecordSuccess clears the failure counter after a good login.
func (g *Guard) RecordSuccess(ctx context.Context, identity string) error {
	if !g.cfg.Enabled {
		return nil
	}

	if err := g.redis.Del(ctx, attemptKey(identity)).Err(); err != nil {
		return g.backendFault("record success", err)
	}

	return nil
}

func (g *Guard) backendFault(op string, err error) error {
	if g.cfg.FailOpen {
		g.logger.Printf("login guard: %s degraded, redis unavailable: %v", op, err)
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}
