// Package filestore implements the SessionKV port as a single JSON file in
// the user's home directory, the way a command-line client caches its login.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SessionKV = (*SessionFile)(nil)

// SessionFile keeps every key in one JSON object. Each write replaces the whole
// file with a rename, so readers see either the old or the new set of keys.
type SessionFile struct {
	mu   sync.Mutex
	path string
}

// NewSessionFile creates a SessionFile at path. The parent directory is created
// on first write with 0700 permissions.
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// DefaultPath returns ~/.scipguard/session.json, or a relative fallback when
// the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".scipguard", "session.json")
	}
	return filepath.Join(home, ".scipguard", "session.json")
}

// Get returns the value for key.
func (f *SessionFile) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", false, err
	}
	val, ok := values[key]
	return val, ok, nil
}

// SetAll merges values into the file and replaces it atomically.
func (f *SessionFile) SetAll(_ context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	if err != nil {
		// A corrupt file cannot be merged into; start over.
		current = map[string]string{}
	}
	for k, v := range values {
		current[k] = v
	}
	return f.write(current)
}

// DeleteAll removes keys and replaces the file atomically. A corrupt file is
// removed entirely, since none of its content can be trusted.
func (f *SessionFile) DeleteAll(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	if err != nil {
		if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("remove corrupt session file: %w", rmErr)
		}
		return nil
	}
	if len(current) == 0 {
		return nil
	}

	for _, k := range keys {
		delete(current, k)
	}
	if len(current) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	}
	return f.write(current)
}

func (f *SessionFile) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return values, nil
}

func (f *SessionFile) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("chmod session file: %w", err)
	}
	return nil
}
