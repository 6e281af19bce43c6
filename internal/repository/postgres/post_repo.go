package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/repository"
)

// postRepository implements repository.PostRepository for PostgreSQL.
type postRepository struct {
	db *DB
}

// NewPostRepository creates a new PostgreSQL post repository.
func NewPostRepository(db *DB) repository.PostRepository {
	return &postRepository{db: db}
}

// Create creates a new post.
func (r *postRepository) Create(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (title, body, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		post.Title,
		post.Body,
		post.UserID,
		post.CreatedAt,
	).Scan(&post.ID)

	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	return nil
}

// GetByID retrieves a post by ID, including its owner's username.
func (r *postRepository) GetByID(ctx context.Context, id int64) (*domain.Post, error) {
	query := `
		SELECT p.id, p.title, p.body, p.user_id, u.username, p.created_at
		FROM posts p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1
	`

	post := &domain.Post{}

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&post.ID,
		&post.Title,
		&post.Body,
		&post.UserID,
		&post.OwnerUsername,
		&post.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to get post by ID: %w", err)
	}

	return post, nil
}

// Update persists a post's title and body.
func (r *postRepository) Update(ctx context.Context, post *domain.Post) error {
	query := `UPDATE posts SET title = $1, body = $2 WHERE id = $3`

	tag, err := r.db.Pool.Exec(ctx, query, post.Title, post.Body, post.ID)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}

	return nil
}

// Delete deletes a post by ID.
func (r *postRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}

	return nil
}

// ListOrderedByCreation returns all posts ordered by creation time, oldest first.
func (r *postRepository) ListOrderedByCreation(ctx context.Context) ([]*domain.Post, error) {
	query := `
		SELECT p.id, p.title, p.body, p.user_id, u.username, p.created_at
		FROM posts p
		JOIN users u ON u.id = p.user_id
		ORDER BY p.created_at
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []*domain.Post
	for rows.Next() {
		post := &domain.Post{}

		err := rows.Scan(
			&post.ID,
			&post.Title,
			&post.Body,
			&post.UserID,
			&post.OwnerUsername,
			&post.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, nil
}

// Ensure postRepository implements repository.PostRepository.
var _ repository.PostRepository = (*postRepository)(nil)
