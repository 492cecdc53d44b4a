package middleware

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
)

// envelopePrefix marks an encrypted payload. The nonce and sealed data follow.
var envelopePrefix = []byte("sqs\x00enc1")

// ErrNotEncrypted is returned when a stored payload lacks the envelope.
var ErrNotEncrypted = errors.New("middleware: stored payload is not encrypted")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// NewEncryptionMiddleware creates a middleware that seals every payload with
// AES-256-GCM. Ids and expiry stay in clear so locking and collection are
// unaffected.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("%w: active key must be 32 bytes (AES-256), got %d", domain.ErrInvalidConfig, len(config.ActiveKey))
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("%w: fallback key %d must be 32 bytes", domain.ErrInvalidConfig, i)
		}
	}
	return func(next ports.Connector) ports.Connector {
		return ports.ConnectorFunc(func(ctx context.Context) (ports.Conn, error) {
			conn, err := next.Conn(ctx)
			if err != nil {
				return nil, err
			}
			return &encryptedConn{Conn: conn, config: config}, nil
		})
	}, nil
}

// encryptedConn overrides the payload-carrying calls of the wrapped Conn.
type encryptedConn struct {
	ports.Conn
	config EncryptionConfig
}

func (c *encryptedConn) Select(ctx context.Context, id string, forUpdate bool) (*domain.Record, error) {
	rec, err := c.Conn.Select(ctx, id, forUpdate)
	if err != nil || rec == nil {
		return rec, err
	}
	plain, err := c.open(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session %q: %w", id, err)
	}
	rec.Data = plain
	return rec, nil
}

func (c *encryptedConn) Insert(ctx context.Context, rec domain.Record) error {
	sealed, err := c.seal(rec.Data)
	if err != nil {
		return err
	}
	rec.Data = sealed
	return c.Conn.Insert(ctx, rec)
}

func (c *encryptedConn) Upsert(ctx context.Context, rec domain.Record) error {
	sealed, err := c.seal(rec.Data)
	if err != nil {
		return err
	}
	rec.Data = sealed
	return c.Conn.Upsert(ctx, rec)
}

func (c *encryptedConn) seal(plain []byte) ([]byte, error) {
	ciphertext, err := encrypt(plain, c.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session: %w", err)
	}
	return append(append([]byte{}, envelopePrefix...), ciphertext...), nil
}

func (c *encryptedConn) open(stored []byte) ([]byte, error) {
	if !bytes.HasPrefix(stored, envelopePrefix) {
		return nil, ErrNotEncrypted
	}
	plain, err := decryptWithRotation(stored[len(envelopePrefix):], c.config.ActiveKey, c.config.FallbackKeys)
	if err != nil {
		return nil, err
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
