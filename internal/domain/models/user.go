package models

import "time"

// User is an account registered with the monitoring service.
type User struct {
	ID        string
	Username  string
	Email     string
	PassHash  []byte
	Roles     []Role
	CreatedAt time.Time
	LastLogin *time.Time
}
