package driven

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the server rejects the bearer credential
	// (HTTP 401). Callers must not treat it as proof that the session is invalid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable is returned when the server cannot be reached.
	ErrUnavailable = errors.New("server unavailable")

	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrNoCredential is returned when an authorized call is attempted without a token.
	ErrNoCredential = errors.New("no credential")

	// ErrEncryptionKeyInvalid is returned by SessionKV adapters constructed with a
	// key that is not 32 bytes long.
	ErrEncryptionKeyInvalid = errors.New("encryption key must be 32 bytes: set SCIPGUARD_SECRET_KEY to base64 of 32 random bytes")
)

// StatusError describes a non-2xx, non-401 response from the server.
type StatusError struct {
	StatusCode int
	Message    string // server-provided "error" field, if any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}
