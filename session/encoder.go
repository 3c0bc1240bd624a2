package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const schemaVersionV1 = 1

const flagEmailVerified = 1 << 0

// Encode renders a session into its compact binary redis blob.
func Encode(sess *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(schemaVersionV1)

	var flags byte
	if sess.EmailVerified {
		flags |= flagEmailVerified
	}
	buf.WriteByte(flags)

	for _, field := range []string{sess.AccountID, sess.Email, sess.Username} {
		if len(field) > 65535 {
			return nil, errors.New("session field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	buf.Write(sess.RefreshHash[:])

	if err := binary.Write(&buf, binary.BigEndian, sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, sess.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. The session ID is carried in
// the redis key, not the blob, so callers set it afterwards.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != schemaVersionV1 {
		return nil, errors.New("invalid session schema version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	sess := &Session{EmailVerified: flags&flagEmailVerified != 0}

	for _, target := range []*string{&sess.AccountID, &sess.Email, &sess.Username} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		field := make([]byte, length)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		*target = string(field)
	}

	if _, err := io.ReadFull(reader, sess.RefreshHash[:]); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.ExpiresAt); err != nil {
		return nil, err
	}

	return sess, nil
}
