package model

// Identity is the signed-in user's profile as returned by the login endpoint.
// It is opaque to the client and only used for display.
type Identity struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Credential is an opaque bearer token issued by the server. Its expiry is
// server-defined and unknown to the client.
type Credential string

// IsZero reports whether no credential is held.
func (c Credential) IsZero() bool {
	return c == ""
}

// String returns the raw token value.
func (c Credential) String() string {
	return string(c)
}
