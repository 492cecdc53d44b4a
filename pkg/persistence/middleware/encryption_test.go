package middleware_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/aretw0/sqlsession/pkg/adapters/memory"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/persistence/middleware"
	"github.com/aretw0/sqlsession/pkg/ports"
	"github.com/aretw0/sqlsession/pkg/session"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, table *memory.Table, config middleware.EncryptionConfig) *session.Provider {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(config)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	p, err := session.NewProvider(middleware.Chain(table, mw), session.WithGCProbability(0, 1))
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return p
}

func put(t *testing.T, p *session.Provider, id, data string) {
	t.Helper()
	err := p.Run(context.Background(), id, func(context.Context, []byte) ([]byte, error) {
		return []byte(data), nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if err != nil {
		t.Fatal(err)
	}
	ports.RunConnContract(t, middleware.Chain(memory.NewTable(), mw))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	table := memory.NewTable()
	p := encrypted(t, table, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	put(t, p, "test-session", "my-secret-sauce")

	// Underlying row must not carry the plaintext.
	stored, ok := table.Get("test-session")
	if !ok {
		t.Fatal("Expected row in table")
	}
	if bytes.Contains(stored.Data, []byte("my-secret-sauce")) {
		t.Fatalf("Expected secret to be hidden, found: %q", stored.Data)
	}

	data, found, err := p.Peek(context.Background(), "test-session")
	if err != nil || !found {
		t.Fatalf("Peek failed: found=%v err=%v", found, err)
	}
	if string(data) != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %q", data)
	}
}

func TestEncryptionMiddleware_PlaceholderIsSealed(t *testing.T) {
	table := memory.NewTable()
	p := encrypted(t, table, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	err := p.Run(context.Background(), "fresh", func(_ context.Context, data []byte) ([]byte, error) {
		if len(data) != 0 {
			t.Errorf("Expected empty payload for a new session, got %q", data)
		}
		return data, nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stored, _ := table.Get("fresh")
	if len(stored.Data) == 0 {
		t.Fatal("Expected an encrypted envelope even for an empty payload")
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	table := memory.NewTable()
	oldKey, newKey := generateKey(t), generateKey(t)

	put(t, encrypted(t, table, middleware.EncryptionConfig{ActiveKey: oldKey}), "rotating", "v1")

	rotated := encrypted(t, table, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	data, _, err := rotated.Peek(context.Background(), "rotating")
	if err != nil {
		t.Fatalf("Expected fallback key to decrypt, got %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("Expected 'v1', got %q", data)
	}

	withoutFallback := encrypted(t, table, middleware.EncryptionConfig{ActiveKey: newKey})
	if _, _, err := withoutFallback.Peek(context.Background(), "rotating"); err == nil {
		t.Fatal("Expected decryption to fail without the old key")
	}
}

func TestEncryptionMiddleware_RejectsPlainRows(t *testing.T) {
	table := memory.NewTable()
	table.Put(domain.Record{ID: "legacy", Expiry: 1 << 40, Data: []byte("plain")})
	p := encrypted(t, table, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	_, _, err := p.Peek(context.Background(), "legacy")
	if !errors.Is(err, middleware.ErrNotEncrypted) {
		t.Fatalf("Expected ErrNotEncrypted, got %v", err)
	}
}

func TestNewEncryptionMiddleware_KeyLength(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
}
