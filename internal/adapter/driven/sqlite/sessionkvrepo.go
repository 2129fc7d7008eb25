package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SessionKV = (*SessionKVRepo)(nil)

// SessionKVRepo is the SQLite implementation of the SessionKV port.
// When constructed with a key, values are encrypted with AES-256-GCM before
// write and decrypted after read.
type SessionKVRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil stores values as plaintext.
}

// NewSessionKVRepo creates a new SessionKVRepo. key must be 32 bytes for
// AES-256-GCM, or nil to store values unencrypted.
func NewSessionKVRepo(db *DB, key []byte) (*SessionKVRepo, error) {
	if key != nil && len(key) != 32 {
		return nil, driven.ErrEncryptionKeyInvalid
	}
	return &SessionKVRepo{db: db, key: key}, nil
}

// Encrypted reports whether values are encrypted at rest.
func (r *SessionKVRepo) Encrypted() bool {
	return r.key != nil
}

// Get retrieves the value for key. Returns ("", false, nil) if it does not exist.
func (r *SessionKVRepo) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM session_kv WHERE key = ?`
	var stored string
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session key %q: %w", key, err)
	}

	value, err := r.decrypt(stored)
	if err != nil {
		return "", false, fmt.Errorf("decrypt session key %q: %w", key, err)
	}
	return value, true, nil
}

// SetAll stores all values inside a single transaction.
func (r *SessionKVRepo) SetAll(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	// Encrypt before opening the transaction so the writer is held briefly.
	encrypted := make(map[string]string, len(values))
	for k, v := range values {
		enc, err := r.encrypt(v)
		if err != nil {
			return fmt.Errorf("encrypt session key %q: %w", k, err)
		}
		encrypted[k] = enc
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		const query = `INSERT OR REPLACE INTO session_kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
		for _, k := range sortedKeys(encrypted) {
			if _, err := tx.ExecContext(ctx, query, k, encrypted[k]); err != nil {
				return fmt.Errorf("set session key %q: %w", k, err)
			}
		}
		return nil
	})
}

// DeleteAll removes all given keys inside a single transaction.
func (r *SessionKVRepo) DeleteAll(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		const query = `DELETE FROM session_kv WHERE key = ?`
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, query, k); err != nil {
				return fmt.Errorf("delete session key %q: %w", k, err)
			}
		}
		return nil
	})
}

func (r *SessionKVRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *SessionKVRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return plaintext, nil
	}

	gcm, err := newGCM(r.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *SessionKVRepo) decrypt(encoded string) (string, error) {
	if r.key == nil {
		return encoded, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := newGCM(r.key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// sortedKeys returns the map keys in a stable order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
