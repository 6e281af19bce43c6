package domain

import (
	"time"
)

// Title and body length limits, enforced at creation and update.
const (
	MaxTitleLen = 65
	MaxBodyLen  = 500
)

// Post represents a blog entry. Every post has exactly one owner for its
// entire lifetime; only that owner may edit or delete it.
type Post struct {
	// ID is the unique identifier for the post (auto-generated).
	ID int64 `json:"id"`

	// Title is the post title. Constraints: 1-65 characters.
	Title string `json:"title"`

	// Body is the post content. Constraints: 1-500 characters.
	Body string `json:"body"`

	// UserID references the owning user. Set at creation, never reassigned.
	UserID int64 `json:"user_id"`

	// OwnerUsername is the owning user's username, resolved on read.
	// Ownership checks compare this against the authenticated identity.
	OwnerUsername string `json:"owner_username"`

	// CreatedAt is the timestamp when the post was created, never modified.
	CreatedAt time.Time `json:"created_at"`
}

// NewPost creates a new Post owned by the given user.
func NewPost(title, body string, userID int64) *Post {
	return &Post{
		Title:     title,
		Body:      body,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}

// OwnedBy reports whether the post belongs to the given username.
// The comparison is exact and case-sensitive.
func (p *Post) OwnedBy(username string) bool {
	return p.OwnerUsername == username
}
