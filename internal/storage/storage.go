package storage

import "errors"

var (
	ErrUserExists        = errors.New("user already exists")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrEmailTaken        = errors.New("email already taken")
	ErrUserNotFound      = errors.New("user not found")
	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrIncidentExists    = errors.New("incident fingerprint already exists")
	ErrIncidentNotFound  = errors.New("incident not found")
	ErrWatchlistNotFound = errors.New("watchlist item not found")
)
