package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/pkg/crypto"
)

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	users     map[string]*domain.User // keyed by username
	nextID    int64
	createErr error
	getErr    error
	countErr  error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:  make(map[string]*domain.User),
		nextID: 1,
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.users[user.Username]; exists {
		return domain.ErrUserAlreadyExists
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return domain.ErrUserAlreadyExists
		}
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.Username] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if u, exists := m.users[username]; exists {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) CountByUsername(ctx context.Context, username string) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	if _, exists := m.users[username]; exists {
		return 1, nil
	}
	return 0, nil
}

func (m *MockUserRepository) CountByEmail(ctx context.Context, email string) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	var count int64
	for _, u := range m.users {
		if u.Email == email {
			count++
		}
	}
	return count, nil
}

func (m *MockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*domain.User
	for _, u := range m.users {
		result = append(result, u)
	}
	return result, nil
}

// AddUser registers a user directly in the mock with a real bcrypt hash.
func (m *MockUserRepository) AddUser(t *testing.T, username, email, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := &domain.User{
		ID:           m.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	m.nextID++
	m.users[username] = user
	return user
}

func newTestUserService(t *testing.T, repo *MockUserRepository) *UserService {
	t.Helper()
	keychain, err := auth.NewKeychain()
	if err != nil {
		t.Fatalf("failed to create keychain: %v", err)
	}
	codec := auth.NewCodec(keychain, auth.DefaultTokenTTL)
	hasher := crypto.NewPasswordHasher(bcrypt.MinCost)
	return NewUserService(repo, hasher, codec, zerolog.Nop())
}

// =============================================================================
// Tests
// =============================================================================

func TestUserService_Register(t *testing.T) {
	valid := RegisterInput{
		Username: "gabriel", Password1: "secret123", Password2: "secret123",
		Email:        "gabriel@example.com",
		HasUsername:  true, HasPassword1: true, HasPassword2: true, HasEmail: true,
	}

	tests := []struct {
		name      string
		input     RegisterInput
		wantErr   error
		setupRepo func(t *testing.T, m *MockUserRepository)
	}{
		{
			name:    "success",
			input:   valid,
			wantErr: nil,
		},
		{
			name: "missing password confirmation field",
			input: RegisterInput{
				Username: "gabriel", Password1: "secret123",
				Email:       "gabriel@example.com",
				HasUsername: true, HasPassword1: true, HasEmail: true,
			},
			wantErr: ErrMissingFields,
		},
		{
			name: "empty username",
			input: func() RegisterInput {
				in := valid
				in.Username = ""
				return in
			}(),
			wantErr: ErrMissingFields,
		},
		{
			name: "empty username outranks mismatched passwords",
			input: func() RegisterInput {
				in := valid
				in.Username = ""
				in.Password2 = "different"
				return in
			}(),
			wantErr: ErrMissingFields,
		},
		{
			name: "email without .com suffix",
			input: func() RegisterInput {
				in := valid
				in.Email = "gabriel@example.org"
				return in
			}(),
			wantErr: ErrInvalidEmail,
		},
		{
			name: "mismatched passwords",
			input: func() RegisterInput {
				in := valid
				in.Password2 = "different"
				return in
			}(),
			wantErr: ErrPasswordMismatch,
		},
		{
			name: "empty confirmation reads as mismatch",
			input: func() RegisterInput {
				in := valid
				in.Password2 = ""
				return in
			}(),
			wantErr: ErrPasswordMismatch,
		},
		{
			name: "password too short",
			input: func() RegisterInput {
				in := valid
				in.Password1 = "abc12"
				in.Password2 = "abc12"
				return in
			}(),
			wantErr: ErrPasswordTooShort,
		},
		{
			name:    "email already registered",
			input:   valid,
			wantErr: ErrEmailTaken,
			setupRepo: func(t *testing.T, m *MockUserRepository) {
				m.AddUser(t, "someone", "gabriel@example.com", "secret123")
			},
		},
		{
			name:    "username already taken",
			input:   valid,
			wantErr: ErrUsernameTaken,
			setupRepo: func(t *testing.T, m *MockUserRepository) {
				m.AddUser(t, "gabriel", "other@example.com", "secret123")
			},
		},
		{
			name: "email taken outranks username taken",
			input: func() RegisterInput {
				in := valid
				return in
			}(),
			wantErr: ErrEmailTaken,
			setupRepo: func(t *testing.T, m *MockUserRepository) {
				m.AddUser(t, "gabriel", "gabriel@example.com", "secret123")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockUserRepository()
			if tt.setupRepo != nil {
				tt.setupRepo(t, repo)
			}

			svc := newTestUserService(t, repo)

			user, err := svc.Register(context.Background(), tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if user.ID == 0 {
				t.Error("expected user to receive an ID")
			}
			if user.Username != tt.input.Username {
				t.Errorf("expected username %s, got %s", tt.input.Username, user.Username)
			}
			if string(user.PasswordHash) == tt.input.Password1 {
				t.Error("password stored in plaintext")
			}
			if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(tt.input.Password1)) != nil {
				t.Error("stored hash does not verify against the password")
			}
			if user.IsAdmin != nil {
				t.Error("expected admin flag to be unset for new users")
			}
		})
	}
}

func TestUserService_Register_CreateRace(t *testing.T) {
	// Pre-checks pass but Create reports a collision, as happens when two
	// identical registrations race. The reported error must follow the same
	// email-before-username precedence as the pre-checks.
	repo := NewMockUserRepository()
	repo.createErr = domain.ErrUserAlreadyExists
	svc := newTestUserService(t, repo)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "gabriel", Password1: "secret123", Password2: "secret123",
		Email:       "gabriel@example.com",
		HasUsername: true, HasPassword1: true, HasPassword2: true, HasEmail: true,
	})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected %v when neither pre-check matches, got %v", ErrUsernameTaken, err)
	}
}

func TestUserService_Login(t *testing.T) {
	tests := []struct {
		name      string
		input     LoginInput
		wantErr   error
		setupRepo func(t *testing.T, m *MockUserRepository)
	}{
		{
			name: "success",
			input: LoginInput{
				Email: "gabriel@example.com", Password: "secret123",
				HasEmail: true, HasPassword: true,
			},
			wantErr: nil,
			setupRepo: func(t *testing.T, m *MockUserRepository) {
				m.AddUser(t, "gabriel", "gabriel@example.com", "secret123")
			},
		},
		{
			name: "missing password field",
			input: LoginInput{
				Email:    "gabriel@example.com",
				HasEmail: true,
			},
			wantErr: ErrMissingFields,
		},
		{
			name: "empty email",
			input: LoginInput{
				Email: "", Password: "secret123",
				HasEmail: true, HasPassword: true,
			},
			wantErr: ErrMissingFields,
		},
		{
			name: "unknown email",
			input: LoginInput{
				Email: "nobody@example.com", Password: "secret123",
				HasEmail: true, HasPassword: true,
			},
			wantErr: domain.ErrInvalidCredentials,
		},
		{
			name: "wrong password",
			input: LoginInput{
				Email: "gabriel@example.com", Password: "wrongpass",
				HasEmail: true, HasPassword: true,
			},
			wantErr: domain.ErrInvalidCredentials,
			setupRepo: func(t *testing.T, m *MockUserRepository) {
				m.AddUser(t, "gabriel", "gabriel@example.com", "secret123")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockUserRepository()
			if tt.setupRepo != nil {
				tt.setupRepo(t, repo)
			}

			svc := newTestUserService(t, repo)

			output, err := svc.Login(context.Background(), tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if output.Token == "" {
				t.Error("expected a token on successful login")
			}
			if output.User == nil || output.User.Email != tt.input.Email {
				t.Error("expected the logged-in user in the output")
			}
		})
	}
}

func TestUserService_Login_UnknownEmailMatchesWrongPassword(t *testing.T) {
	// The two failure modes must be indistinguishable to the caller.
	repo := NewMockUserRepository()
	repo.AddUser(t, "gabriel", "gabriel@example.com", "secret123")
	svc := newTestUserService(t, repo)

	_, errUnknown := svc.Login(context.Background(), LoginInput{
		Email: "nobody@example.com", Password: "secret123",
		HasEmail: true, HasPassword: true,
	})
	_, errWrong := svc.Login(context.Background(), LoginInput{
		Email: "gabriel@example.com", Password: "wrongpass",
		HasEmail: true, HasPassword: true,
	})

	if !errors.Is(errUnknown, domain.ErrInvalidCredentials) || !errors.Is(errWrong, domain.ErrInvalidCredentials) {
		t.Fatalf("expected both failures to be %v, got %v and %v",
			domain.ErrInvalidCredentials, errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Errorf("unknown-email and wrong-password errors differ: %q vs %q",
			errUnknown.Error(), errWrong.Error())
	}
}

func TestUserService_ListUsers(t *testing.T) {
	repo := NewMockUserRepository()
	repo.AddUser(t, "alice", "alice@example.com", "secret123")
	repo.AddUser(t, "bob", "bob@example.com", "secret123")
	svc := newTestUserService(t, repo)

	users, err := svc.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}
