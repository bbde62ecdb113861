package models

import "time"

// Watchlist item types.
const (
	WatchEmail    = "email"
	WatchDomain   = "domain"
	WatchUsername = "username"
	WatchPhone    = "phone"
)

// WatchlistItem is a user-owned identifier to monitor. Type and Value are
// stored normalized to lowercase.
type WatchlistItem struct {
	ID            string
	UserID        string
	Type          string
	Value         string
	Active        bool
	CreatedAt     time.Time
	LastCheckedAt *time.Time
}
