package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// TokenID is the lookup half of an opaque token. The other half is a
// 32-byte secret that is only ever stored hashed.
type TokenID [16]byte

const (
	tokenRawSize = 48
	// SecretSize is the byte length of the random secret half of a token.
	SecretSize = 32
)

// NewTokenID returns a random token id.
func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

// Bytes returns the raw id bytes.
func (t TokenID) Bytes() []byte {
	return t[:]
}

// String renders the id as compact, unpadded base64url.
func (t TokenID) String() string {
	return base64.RawURLEncoding.EncodeToString(t[:])
}

// ParseTokenID decodes the base64url form produced by String.
func ParseTokenID(s string) (TokenID, error) {
	var id TokenID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid token id size")
	}

	copy(id[:], raw)
	return id, nil
}

// NewSecret returns a fresh random token secret.
func NewSecret() ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the digest stored in place of the secret itself.
func HashSecret(secret [SecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeToken joins id and secret into the opaque 64-character wire token.
func EncodeToken(id TokenID, secret [SecretSize]byte) string {
	var raw [tokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeToken splits a wire token back into its id and secret halves.
func DecodeToken(token string) (TokenID, [SecretSize]byte, error) {
	var (
		id     TokenID
		secret [SecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != tokenRawSize {
		return id, secret, errors.New("invalid token size")
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id, secret, nil
}
