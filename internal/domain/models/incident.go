package models

import "time"

// Evidence holds the sanitized proof fields attached to a breach incident.
// PasswordHash and PasswordRedacted are internal only and must never reach
// external callers; they are excluded from JSON serialization entirely.
type Evidence struct {
	Email            string `json:"email,omitempty" bson:"email,omitempty"`
	PasswordHash     string `json:"-" bson:"password_hash,omitempty"`
	PasswordRedacted string `json:"-" bson:"password_redacted,omitempty"`
	Phone            string `json:"phone,omitempty" bson:"phone,omitempty"`
	Username         string `json:"username,omitempty" bson:"username,omitempty"`
	Details          string `json:"details,omitempty" bson:"details,omitempty"`
}

// BreachIncident is one observed exposure event. A fingerprint uniquely
// identifies a logical incident across all sources; re-ingesting the same
// event bumps OccurrenceCount instead of creating a second record.
type BreachIncident struct {
	ID                  string         `json:"id"`
	Source              string         `json:"source"`
	SourceID            string         `json:"sourceId,omitempty"`
	Type                string         `json:"type,omitempty"`
	Evidence            Evidence       `json:"evidence"`
	DiscoveredAt        *time.Time     `json:"discoveredAt,omitempty"`
	FirstSeen           time.Time      `json:"firstSeen"`
	LastSeen            time.Time      `json:"lastSeen"`
	RiskScore           int            `json:"riskScore"`
	OccurrenceCount     int            `json:"occurrenceCount"`
	Fingerprint         string         `json:"fingerprint"`
	MatchedWatchlistIDs []string       `json:"matchedWatchlistIds,omitempty"`
	LinkedUserIDs       []string       `json:"linkedUserIds,omitempty"`
	Meta                map[string]any `json:"meta,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
}
