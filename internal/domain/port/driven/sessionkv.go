package driven

import "context"

// SessionKV is the durable key-value store that holds the persisted session.
// Multi-key writes and deletes are atomic: a reader never observes a subset of
// the keys passed to a single SetAll or DeleteAll call.
type SessionKV interface {
	// Get returns the value for key. ok is false if the key does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// SetAll stores every entry in values in one atomic operation.
	SetAll(ctx context.Context, values map[string]string) error

	// DeleteAll removes every given key in one atomic operation. Missing keys
	// are not an error.
	DeleteAll(ctx context.Context, keys ...string) error
}
