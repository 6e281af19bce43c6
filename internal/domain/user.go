// Package domain contains the core business entities for Quill.
// These are pure Go structs with no external dependencies, representing
// the fundamental concepts of the blogging service.
package domain

import (
	"time"
)

// Username and email length limits, enforced at registration.
const (
	MaxUsernameLen = 30
	MaxEmailLen    = 40
)

// User represents a registered author in the system.
// Users own posts; username and email are globally unique and immutable
// after creation (there is no rename or delete-user operation).
type User struct {
	// ID is the unique identifier for the user (auto-generated).
	ID int64 `json:"id"`

	// Username is the unique username for login and post ownership.
	// Constraints: 1-30 characters.
	Username string `json:"username"`

	// Email is the unique email address for the user.
	// Constraints: 1-40 characters, must end in ".com".
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// This should never be exposed in API responses or logs.
	PasswordHash []byte `json:"-"`

	// IsAdmin indicates administrative privileges. It is tri-state:
	// nil means the flag was never set; only an explicit true grants
	// access to the admin user listing.
	IsAdmin *bool `json:"is_admin,omitempty"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewUser creates a new User with default values.
func NewUser(username, email string, passwordHash []byte) *User {
	return &User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
}

// HasAdminAccess returns true only when the admin flag is explicitly set.
func (u *User) HasAdminAccess() bool {
	return u.IsAdmin != nil && *u.IsAdmin
}
