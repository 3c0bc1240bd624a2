package session

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no live session backs a refresh token.
	ErrNotFound = errors.New("refresh session not found")
	// ErrRevoked is returned when a rotated-away or revoked refresh
	// token is replayed.
	ErrRevoked = errors.New("refresh token revoked")
	// ErrRedisUnavailable wraps redis transport faults.
	ErrRedisUnavailable = errors.New("session redis unavailable")
)

const (
	rotateRetries  = 4
	blacklistValue = "1"
)

// Store is the redis-backed refresh session store.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	blacklist string
	now       func() time.Time
}

// NewStore creates a session [Store] under the given key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:     redisClient,
		prefix:    prefix,
		blacklist: prefix + "b",
		now:       time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) blacklistKey(hash [32]byte) string {
	return s.blacklist + ":" + base64.RawURLEncoding.EncodeToString(hash[:])
}

// Save persists a new session for its full remaining lifetime.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	if err := s.redis.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Rotate swaps the session's refresh hash from providedHash to nextHash
// and blacklists the predecessor. Replaying a blacklisted or stale hash
// tears the session down and reports ErrRevoked.
func (s *Store) Rotate(ctx context.Context, sessionID string, providedHash, nextHash [32]byte) (*Session, error) {
	key := s.key(sessionID)

	seen, err := s.redis.Exists(ctx, s.blacklistKey(providedHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if seen > 0 {
		// Reuse of a rotated-away token: the lineage is compromised,
		// kill the whole session.
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil, ErrRevoked
	}

	for i := 0; i < rotateRetries; i++ {
		var rotated *Session

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			sess, err := Decode(data)
			if err != nil {
				return err
			}
			sess.ID = sessionID

			now := s.now()
			if sess.Expired(now) {
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrNotFound
			}

			if subtle.ConstantTimeCompare(sess.RefreshHash[:], providedHash[:]) != 1 {
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrRevoked
			}

			sess.RefreshHash = nextHash
			updated, err := Encode(sess)
			if err != nil {
				return err
			}

			ttl := time.Unix(sess.ExpiresAt, 0).Sub(now)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				pipe.Set(ctx, s.blacklistKey(providedHash), blacklistValue, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			rotated = sess
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrRevoked) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		return rotated, nil
	}

	// A concurrent rotation won every retry; the provided hash is stale.
	return nil, ErrRevoked
}

// Revoke removes the session and blacklists its current hash. Revoking a
// session that is already gone is a no-op.
func (s *Store) Revoke(ctx context.Context, sessionID string, providedHash [32]byte) error {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(sess.RefreshHash[:], providedHash[:]) != 1 {
		// A stale token cannot revoke the live lineage.
		return nil
	}

	ttl := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		ttl = time.Minute
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Set(ctx, s.blacklistKey(providedHash), blacklistValue, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}
