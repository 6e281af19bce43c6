package domain

import (
	"errors"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same username/email exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials indicates authentication failed. It is deliberately
	// shared between "unknown email" and "wrong password" so responses cannot
	// leak which of the two occurred.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ===========================================
	// Post Errors
	// ===========================================

	// ErrPostNotFound indicates the requested post does not exist.
	ErrPostNotFound = errors.New("post not found")

	// ErrNotOwner indicates the authenticated user does not own the post.
	ErrNotOwner = errors.New("post is owned by another user")
)
