package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// ErrNotSealed is returned when an encrypting store reads a plain record.
var ErrNotSealed = errors.New("document is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey seals every record written. Must be 32 bytes (AES-256).
	ActiveKey []byte

	// FallbackKeys are tried, in order, when the active key cannot open a
	// record. Rotate by moving the old active key here.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next ports.HistoryStore
	// keys[0] is the active key.
	keys []cipher.AEAD
}

// NewEncryptionMiddleware seals whole records with AES-256-GCM. The stored
// envelope keeps only ID and UpdatedAt in the clear, for store indexes.
// The document ID is bound as additional data, so a ciphertext copied onto
// another document does not open. It panics if any key is not 32 bytes.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	keys := make([]cipher.AEAD, 0, 1+len(config.FallbackKeys))
	for i, raw := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		aead, err := newAEAD(raw)
		if err != nil {
			panic(fmt.Sprintf("encryption key %d: %v", i, err))
		}
		keys = append(keys, aead)
	}
	return func(next ports.HistoryStore) ports.HistoryStore {
		return &encryptionMiddleware{next: next, keys: keys}
	}
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (AES-256), got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (m *encryptionMiddleware) Save(ctx context.Context, documentID string, record *domain.DocumentRecord) error {
	plain, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	sealed, err := m.seal(documentID, plain)
	if err != nil {
		return fmt.Errorf("failed to encrypt document: %w", err)
	}

	return m.next.Save(ctx, documentID, &domain.DocumentRecord{
		ID:        record.ID,
		UpdatedAt: record.UpdatedAt,
		History:   domain.TreeRecord{Nodes: map[string]*domain.HistoryNode{}},
		Sealed:    sealed,
	})
}

func (m *encryptionMiddleware) Load(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	envelope, err := m.next.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	// Fail closed on plain records.
	if len(envelope.Sealed) == 0 {
		return nil, ErrNotSealed
	}

	plain, err := m.open(documentID, envelope.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt document: %w", err)
	}

	var record domain.DocumentRecord
	if err := json.Unmarshal(plain, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted document: %w", err)
	}
	return &record, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, documentID string) error {
	return m.next.Delete(ctx, documentID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// seal returns nonce || ciphertext under the active key.
func (m *encryptionMiddleware) seal(documentID string, plain []byte) ([]byte, error) {
	aead := m.keys[0]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, []byte(documentID)), nil
}

func (m *encryptionMiddleware) open(documentID string, sealed []byte) ([]byte, error) {
	for _, aead := range m.keys {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], []byte(documentID)); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("no configured key opens the record")
}
