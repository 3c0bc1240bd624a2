package tokens

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gearmarket/auth/internal"
)

const (
	keyPrefix  = "avt"
	maxRetries = 4
)

// Resolved is the outcome of a successful Resolve or Consume.
type Resolved struct {
	ID        internal.TokenID
	AccountID string
	Purpose   Purpose
	ExpiresAt time.Time
}

// Store issues and spends single-use verification tokens. Redis is the
// primary copy; an optional durable archive survives a cache flush.
type Store struct {
	redis          redis.UniversalClient
	durable        Durable
	prefix         string
	requireDurable bool
	logger         *log.Logger
	now            func() time.Time
}

// NewStore creates a token [Store]. durable may be nil; requireDurable
// turns a failed archive write into an issuance failure instead of a
// logged degradation.
func NewStore(redisClient redis.UniversalClient, durable Durable, requireDurable bool, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		redis:          redisClient,
		durable:        durable,
		prefix:         keyPrefix,
		requireDurable: requireDurable,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *Store) key(id internal.TokenID) string {
	return s.prefix + ":" + id.String()
}

// Issue mints a fresh token bound to accountID and purpose, valid for
// ttl, and returns its opaque wire form. The stored record holds only a
// hash of the secret half.
func (s *Store) Issue(ctx context.Context, accountID string, purpose Purpose, ttl time.Duration) (string, error) {
	now := s.now()

	for i := 0; i < maxRetries; i++ {
		id, err := internal.NewTokenID()
		if err != nil {
			return "", err
		}
		secret, err := internal.NewSecret()
		if err != nil {
			return "", err
		}

		rec := &record{
			AccountID:  accountID,
			SecretHash: internal.HashSecret(secret),
			Purpose:    purpose,
			IssuedAt:   now.Unix(),
			ExpiresAt:  now.Add(ttl).Unix(),
		}

		encoded, err := encodeRecord(rec)
		if err != nil {
			return "", err
		}

		ok, err := s.redis.SetNX(ctx, s.key(id), encoded, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if !ok {
			continue
		}

		if s.durable != nil {
			archive := &ArchiveRecord{
				ID:         id,
				AccountID:  accountID,
				Purpose:    purpose,
				SecretHash: rec.SecretHash,
				IssuedAt:   now,
				ExpiresAt:  now.Add(ttl),
			}
			if err := s.durable.Insert(ctx, archive); err != nil {
				if s.requireDurable {
					if delErr := s.redis.Del(ctx, s.key(id)).Err(); delErr != nil {
						s.logger.Printf("token store: orphan cleanup failed: %v", delErr)
					}
					return "", fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
				}
				s.logger.Printf("token store: archive write failed, continuing ephemeral-only: %v", err)
			}
		}

		return internal.EncodeToken(id, secret), nil
	}

	return "", errors.New("token id space exhausted")
}

// Resolve validates a token without spending it. Redis is consulted
// first; when redis has no record or is unreachable the durable archive
// answers, still bounded by the original TTL.
func (s *Store) Resolve(ctx context.Context, token string, purpose Purpose) (*Resolved, error) {
	id, secret, err := internal.DecodeToken(token)
	if err != nil {
		return nil, ErrNotFound
	}
	providedHash := internal.HashSecret(secret)

	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	switch {
	case err == nil:
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		return s.checkRecord(id, rec, providedHash, purpose)
	case errors.Is(err, redis.Nil):
		return s.resolveDurable(ctx, id, providedHash, purpose, false)
	default:
		resolved, derr := s.resolveDurable(ctx, id, providedHash, purpose, false)
		if derr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return resolved, nil
	}
}

// Consume spends a token at most once. Concurrent callers race through a
// redis check-and-invalidate transaction; exactly one wins, the rest see
// ErrAlreadyConsumed.
func (s *Store) Consume(ctx context.Context, token string, purpose Purpose) (*Resolved, error) {
	id, secret, err := internal.DecodeToken(token)
	if err != nil {
		return nil, ErrNotFound
	}
	providedHash := internal.HashSecret(secret)
	key := s.key(id)

	for i := 0; i < maxRetries; i++ {
		var resolved *Resolved

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}

			checked, err := s.checkRecord(id, rec, providedHash, purpose)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			resolved = checked
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return s.resolveDurable(ctx, id, providedHash, purpose, true)
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound),
				errors.Is(err, ErrSecretMismatch),
				errors.Is(err, ErrPurposeMismatch):
				return nil, err
			default:
				resolved, derr := s.resolveDurable(ctx, id, providedHash, purpose, true)
				if derr != nil {
					return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				return resolved, nil
			}
		}

		// With an archive present the conditional consume mark is the
		// arbiter: a racer that fell through to the archive after the
		// key vanished must not win a second time.
		if s.durable != nil {
			won, err := s.durable.MarkConsumed(ctx, id, s.now())
			if err != nil {
				// The redis record is gone, so the token is burned either
				// way. Reporting failure keeps the spend at-most-once: an
				// unmarked archive row must never let the token resolve a
				// second time after a cache flush.
				return nil, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
			}
			if !won {
				return nil, ErrAlreadyConsumed
			}
		}

		return resolved, nil
	}

	// Too many transaction conflicts means a concurrent consumer won.
	return nil, ErrAlreadyConsumed
}

// Remove discards an unconsumed token. Used to compensate a signup whose
// verification mail never left the building.
func (s *Store) Remove(ctx context.Context, token string) error {
	id, _, err := internal.DecodeToken(token)
	if err != nil {
		return ErrNotFound
	}

	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if s.durable != nil {
		if err := s.durable.Delete(ctx, id); err != nil {
			s.logger.Printf("token store: archive delete failed: %v", err)
		}
	}

	return nil
}

func (s *Store) checkRecord(id internal.TokenID, rec *record, providedHash [32]byte, purpose Purpose) (*Resolved, error) {
	if s.now().Unix() > rec.ExpiresAt {
		return nil, ErrNotFound
	}
	if subtle.ConstantTimeCompare(rec.SecretHash[:], providedHash[:]) != 1 {
		return nil, ErrSecretMismatch
	}
	if rec.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}

	return &Resolved{
		ID:        id,
		AccountID: rec.AccountID,
		Purpose:   rec.Purpose,
		ExpiresAt: time.Unix(rec.ExpiresAt, 0),
	}, nil
}

func (s *Store) resolveDurable(ctx context.Context, id internal.TokenID, providedHash [32]byte, purpose Purpose, consume bool) (*Resolved, error) {
	if s.durable == nil {
		return nil, ErrNotFound
	}

	archive, err := s.durable.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	if archive == nil {
		return nil, ErrNotFound
	}
	if s.now().After(archive.ExpiresAt) {
		return nil, ErrNotFound
	}
	if subtle.ConstantTimeCompare(archive.SecretHash[:], providedHash[:]) != 1 {
		return nil, ErrSecretMismatch
	}
	if archive.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	if archive.ConsumedAt != nil {
		return nil, ErrAlreadyConsumed
	}

	if consume {
		won, err := s.durable.MarkConsumed(ctx, id, s.now())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
		}
		if !won {
			return nil, ErrAlreadyConsumed
		}
	}

	return &Resolved{
		ID:        id,
		AccountID: archive.AccountID,
		Purpose:   archive.Purpose,
		ExpiresAt: archive.ExpiresAt,
	}, nil
}
