package models

import "time"

// RefreshToken represents a refresh token stored in the database. Only the
// SHA-256 hash of the token value is ever persisted; the plaintext exists
// transiently between generation and the client response.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy string
	IP         string
	UserAgent  string
}

// Active reports whether the token can still be rotated at t.
func (rt *RefreshToken) Active(t time.Time) bool {
	return !rt.Revoked && t.Before(rt.ExpiresAt)
}
