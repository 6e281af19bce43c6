package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/pkg/crypto"
	"github.com/quillhq/quill/internal/repository"
)

// MinPasswordLen is the minimum accepted password length at registration.
const MinPasswordLen = 6

// emailSuffix is the only accepted email domain suffix.
const emailSuffix = ".com"

// UserService handles registration, login, and the admin user listing.
type UserService struct {
	users  repository.UserRepository
	hasher *crypto.PasswordHasher
	tokens *auth.Codec
	logger zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users repository.UserRepository, hasher *crypto.PasswordHasher, tokens *auth.Codec, logger zerolog.Logger) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger.With().Str("service", "user").Logger(),
	}
}

// RegisterInput is the registration form as submitted. The Has* flags record
// whether each field was present at all, which is checked separately from
// emptiness: an absent field and an empty one both fail, in that order.
type RegisterInput struct {
	Username  string
	Password1 string
	Password2 string
	Email     string

	HasUsername  bool
	HasPassword1 bool
	HasPassword2 bool
	HasEmail     bool
}

// Register runs the registration pipeline. Checks run in a fixed order and
// short-circuit at the first failure, so a submission violating several
// rules always reports the earliest one:
//
//  1. all four fields present
//  2. username, password1, email non-empty
//  3. email ends in ".com"
//  4. passwords match (this is also what catches an empty password2)
//  5. password at least six characters
//  6. email not already registered
//  7. username not already taken
//
// The storage layer's unique constraints remain the enforcement point when
// two identical registrations race; the existence checks here are a fast
// path for user feedback.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if !input.HasUsername || !input.HasPassword1 || !input.HasPassword2 || !input.HasEmail {
		return nil, ErrMissingFields
	}
	if input.Username == "" || input.Password1 == "" || input.Email == "" {
		return nil, ErrMissingFields
	}
	if !strings.HasSuffix(input.Email, emailSuffix) {
		return nil, ErrInvalidEmail
	}
	if input.Password1 != input.Password2 {
		return nil, ErrPasswordMismatch
	}
	if len(input.Password1) < MinPasswordLen {
		return nil, ErrPasswordTooShort
	}

	count, err := s.users.CountByEmail(ctx, input.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check email existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if count != 0 {
		return nil, ErrEmailTaken
	}

	count, err = s.users.CountByUsername(ctx, input.Username)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check username existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if count != 0 {
		return nil, ErrUsernameTaken
	}

	// Column caps; checked last so they never preempt the ordered checks.
	if len(input.Username) > domain.MaxUsernameLen || len(input.Email) > domain.MaxEmailLen {
		return nil, ErrFieldTooLong
	}

	passwordHash, err := s.hasher.Hash(input.Password1)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	user := domain.NewUser(input.Username, input.Email, passwordHash)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			// Lost a race with an identical registration; report the same
			// precedence the pre-checks would have.
			return nil, s.classifyTakenError(ctx, input)
		}
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to create user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user registered")

	return user, nil
}

// classifyTakenError decides whether a unique-constraint race was on the
// email or the username, preserving email-before-username precedence.
func (s *UserService) classifyTakenError(ctx context.Context, input RegisterInput) error {
	if count, err := s.users.CountByEmail(ctx, input.Email); err == nil && count != 0 {
		return ErrEmailTaken
	}
	return ErrUsernameTaken
}

// LoginInput is the login form as submitted.
type LoginInput struct {
	Email    string
	Password string

	HasEmail    bool
	HasPassword bool
}

// LoginOutput is the result of a successful login.
type LoginOutput struct {
	User  *domain.User
	Token string
}

// Login runs the login pipeline: field presence, user lookup by email,
// password verification, token issuance. An unknown email and a wrong
// password produce the identical error so responses cannot reveal whether
// an email is registered.
func (s *UserService) Login(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	if !input.HasEmail || !input.HasPassword || input.Email == "" || input.Password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Debug().Msg("login attempt for unknown email")
			return nil, domain.ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Msg("failed to look up user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		s.logger.Debug().Str("username", user.Username).Msg("invalid password during login")
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue token")
		return nil, fmt.Errorf("%w: failed to issue token", ErrInternalError)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Bool("admin", user.HasAdminAccess()).
		Msg("user logged in")

	return &LoginOutput{User: user, Token: token}, nil
}

// ListUsers returns all users for the admin view.
func (s *UserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return users, nil
}
