package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/repository"
)

// PostService handles post creation, editing, deletion, and listing.
type PostService struct {
	posts  repository.PostRepository
	users  repository.UserRepository
	logger zerolog.Logger
}

// NewPostService creates a new PostService.
func NewPostService(posts repository.PostRepository, users repository.UserRepository, logger zerolog.Logger) *PostService {
	return &PostService{
		posts:  posts,
		users:  users,
		logger: logger.With().Str("service", "post").Logger(),
	}
}

// PostInput is a post form as submitted.
type PostInput struct {
	Title string
	Body  string

	HasTitle bool
	HasBody  bool
}

func (in PostInput) validate() error {
	if !in.HasTitle || !in.HasBody || in.Title == "" || in.Body == "" {
		return ErrMissingFields
	}
	if len(in.Title) > domain.MaxTitleLen || len(in.Body) > domain.MaxBodyLen {
		return ErrFieldTooLong
	}
	return nil
}

// Create validates the form and stores a new post owned by the user with the
// given username. The username comes from a verified token, not the form.
func (s *PostService) Create(ctx context.Context, username string, input PostInput) (*domain.Post, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	owner, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Msg("failed to look up post owner")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	post := domain.NewPost(input.Title, input.Body, owner.ID)
	post.OwnerUsername = owner.Username

	if err := s.posts.Create(ctx, post); err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("failed to create post")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("post_id", post.ID).
		Str("username", username).
		Msg("post created")

	return post, nil
}

// Get returns a single post, typically to prefill the edit form.
func (s *PostService) Get(ctx context.Context, id int64) (*domain.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			return nil, domain.ErrPostNotFound
		}
		s.logger.Error().Err(err).Int64("post_id", id).Msg("failed to get post")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return post, nil
}

// Update edits an existing post. Checks run in a fixed order: the post must
// exist, the submitted fields must be valid, and the caller must own the
// post. A missing post outranks a bad form, and a bad form outranks a
// foreign owner.
func (s *PostService) Update(ctx context.Context, username string, id int64, input PostInput) (*domain.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			return nil, domain.ErrPostNotFound
		}
		s.logger.Error().Err(err).Int64("post_id", id).Msg("failed to get post for update")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	if !post.OwnedBy(username) {
		s.logger.Warn().
			Int64("post_id", id).
			Str("username", username).
			Msg("update denied for non-owner")
		return nil, domain.ErrNotOwner
	}

	post.Title = input.Title
	post.Body = input.Body

	if err := s.posts.Update(ctx, post); err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			return nil, domain.ErrPostNotFound
		}
		s.logger.Error().Err(err).Int64("post_id", id).Msg("failed to update post")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("post_id", id).
		Str("username", username).
		Msg("post updated")

	return post, nil
}

// Delete removes a post if the caller owns it. The post must exist before
// ownership is judged.
func (s *PostService) Delete(ctx context.Context, username string, id int64) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			return domain.ErrPostNotFound
		}
		s.logger.Error().Err(err).Int64("post_id", id).Msg("failed to get post for delete")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if !post.OwnedBy(username) {
		s.logger.Warn().
			Int64("post_id", id).
			Str("username", username).
			Msg("delete denied for non-owner")
		return domain.ErrNotOwner
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			return domain.ErrPostNotFound
		}
		s.logger.Error().Err(err).Int64("post_id", id).Msg("failed to delete post")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("post_id", id).
		Str("username", username).
		Msg("post deleted")

	return nil
}

// List returns all posts ordered by creation time, oldest first.
func (s *PostService) List(ctx context.Context) ([]*domain.Post, error) {
	posts, err := s.posts.ListOrderedByCreation(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list posts")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return posts, nil
}
