// Package repository defines data access interfaces for Quill.
// These interfaces abstract database operations, allowing for different
// implementations (SQLite, PostgreSQL, in-memory for testing) while keeping
// the service layer clean.
package repository

import (
	"context"

	"github.com/quillhq/quill/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
// Usernames and emails carry unique constraints at the storage layer; the
// service-level existence checks are a fast path, the constraint is the
// enforcement point when identical registrations race.
type UserRepository interface {
	// Create creates a new user. Returns domain.ErrUserAlreadyExists when
	// the username or email collides with an existing row.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// CountByUsername returns the number of users with the given username.
	CountByUsername(ctx context.Context, username string) (int64, error)

	// CountByEmail returns the number of users with the given email.
	CountByEmail(ctx context.Context, email string) (int64, error)

	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]*domain.User, error)
}

// =============================================================================
// Post Repository
// =============================================================================

// PostRepository defines the interface for post data access.
// Reads resolve the owning user's username so ownership checks never need a
// second lookup.
type PostRepository interface {
	// Create creates a new post owned by post.UserID.
	Create(ctx context.Context, post *domain.Post) error

	// GetByID retrieves a post by ID, including its owner's username.
	GetByID(ctx context.Context, id int64) (*domain.Post, error)

	// Update persists a post's title and body.
	Update(ctx context.Context, post *domain.Post) error

	// Delete deletes a post by ID.
	Delete(ctx context.Context, id int64) error

	// ListOrderedByCreation returns all posts ordered by creation time,
	// oldest first.
	ListOrderedByCreation(ctx context.Context) ([]*domain.Post, error)
}
