package session

import "time"

// Session is one refresh lineage for an account. Only the hash of the
// current refresh secret is stored.
type Session struct {
	ID            string
	AccountID     string
	Email         string
	Username      string
	EmailVerified bool
	RefreshHash   [32]byte
	CreatedAt     int64
	ExpiresAt     int64
}

// Expired reports whether the session lifetime has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}
