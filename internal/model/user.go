// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account. PasswordHash holds the bcrypt hash
// of the user's password and is never serialized.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the per-request caller identity. The HTTP layer resolves it
// from the session token and passes it explicitly into every service call;
// services never look it up ambiently.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Identity returns the caller identity for this user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}
}
