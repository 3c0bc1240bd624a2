package tokens

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/gearmarket/auth/internal"
)

// Purpose distinguishes the flows a token can be spent on.
type Purpose uint8

const (
	// PurposeEmailVerification activates a freshly registered account.
	PurposeEmailVerification Purpose = iota + 1
	// PurposePasswordReset authorizes a credential rotation.
	PurposePasswordReset
)

// String implements fmt.Stringer for audit payloads.
func (p Purpose) String() string {
	switch p {
	case PurposeEmailVerification:
		return "email_verification"
	case PurposePasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

const recordVersionV1 = 1

type record struct {
	AccountID  string
	SecretHash [32]byte
	Purpose    Purpose
	IssuedAt   int64
	ExpiresAt  int64
}

func encodeRecord(rec *record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	buf.WriteByte(byte(rec.Purpose))

	if err := binary.Write(&buf, binary.BigEndian, rec.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt); err != nil {
		return nil, err
	}

	if len(rec.AccountID) > 65535 {
		return nil, errors.New("token record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.AccountID)
	buf.Write(rec.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid token record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	rec := &record{Purpose: Purpose(purpose)}

	if err := binary.Read(reader, binary.BigEndian, &rec.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	rec.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, rec.SecretHash[:]); err != nil {
		return nil, err
	}

	return rec, nil
}

// ArchiveRecord is the durable mirror of an issued token.
type ArchiveRecord struct {
	ID         internal.TokenID
	AccountID  string
	Purpose    Purpose
	SecretHash [32]byte
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Durable archives issued tokens so consumption survives a redis flush.
// MarkConsumed must be a conditional update: it reports false when
// another caller already spent the token, and true when it performed the
// transition or no record exists to contend with.
type Durable interface {
	Insert(ctx context.Context, rec *ArchiveRecord) error
	Get(ctx context.Context, id internal.TokenID) (*ArchiveRecord, error)
	MarkConsumed(ctx context.Context, id internal.TokenID, at time.Time) (bool, error)
	Delete(ctx context.Context, id internal.TokenID) error
}
