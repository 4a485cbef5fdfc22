// Package schemas defines the data structures exchanged with the database and over HTTP.
package schemas

import (
	"time"
)

// User represents the data model for a user in the system.
// The password hash never leaves the persistence layer.
type User struct {
	ID        string     `json:"id"`         // Unique identifier for the user.
	Username  string     `json:"username"`   // Username of the user.
	Email     string     `json:"email"`      // Email address of the user.
	Password  string     `json:"-"`          // Password hash of the user, never serialized.
	CreatedAt *time.Time `json:"created_at"` // Timestamp when the user was created.
}

// Confirmation represents a single account-activation attempt for a user.
// A user may hold several confirmations (e.g. after a resend); the one with
// the highest creation time decides whether the account counts as activated.
type Confirmation struct {
	ID        string     `json:"id"`         // Unique identifier for the confirmation.
	UserID    string     `json:"user_id"`    // Identifier of the user this confirmation belongs to.
	CreatedAt *time.Time `json:"created_at"` // Timestamp when the confirmation was created.
	ExpiresAt *time.Time `json:"expires_at"` // Timestamp when the confirmation link expires.
	Confirmed bool       `json:"confirmed"`  // Whether the confirmation link has been used.
}
