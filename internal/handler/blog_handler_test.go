package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/pkg/crypto"
	"github.com/quillhq/quill/internal/service"
	"github.com/quillhq/quill/internal/session"
)

// =============================================================================
// In-Memory Repositories
// =============================================================================

type memUserRepo struct {
	users  map[string]*domain.User
	nextID int64
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User), nextID: 1}
}

func (m *memUserRepo) Create(ctx context.Context, user *domain.User) error {
	if _, ok := m.users[user.Username]; ok {
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

func (m *memUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUserRepo) CountByUsername(ctx context.Context, username string) (int64, error) {
	if _, ok := m.users[username]; ok {
		return 1, nil
	}
	return 0, nil
}

func (m *memUserRepo) CountByEmail(ctx context.Context, email string) (int64, error) {
	for _, u := range m.users {
		if u.Email == email {
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

type memPostRepo struct {
	posts  map[int64]*domain.Post
	nextID int64
}

func newMemPostRepo() *memPostRepo {
	return &memPostRepo{posts: make(map[int64]*domain.Post), nextID: 1}
}

func (m *memPostRepo) Create(ctx context.Context, post *domain.Post) error {
	post.ID = m.nextID
	m.nextID++
	m.posts[post.ID] = post
	return nil
}

func (m *memPostRepo) GetByID(ctx context.Context, id int64) (*domain.Post, error) {
	if p, ok := m.posts[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, domain.ErrPostNotFound
}

func (m *memPostRepo) Update(ctx context.Context, post *domain.Post) error {
	stored, ok := m.posts[post.ID]
	if !ok {
		return domain.ErrPostNotFound
	}
	stored.Title = post.Title
	stored.Body = post.Body
	return nil
}

func (m *memPostRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.posts[id]; !ok {
		return domain.ErrPostNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *memPostRepo) ListOrderedByCreation(ctx context.Context) ([]*domain.Post, error) {
	var posts []*domain.Post
	for id := int64(1); id < m.nextID; id++ {
		if p, ok := m.posts[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

// =============================================================================
// Test Server
// =============================================================================

type testServer struct {
	handler  http.Handler
	users    *memUserRepo
	posts    *memPostRepo
	keychain *auth.Keychain
	revoked  *auth.MemoryRevocationList
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	keychain, err := auth.NewKeychain()
	require.NoError(t, err)
	codec := auth.NewCodec(keychain, auth.DefaultTokenTTL)
	revoked := auth.NewMemoryRevocationList()
	t.Cleanup(revoked.Stop)

	sessions := session.NewCookieStore(int(auth.DefaultTokenTTL / time.Second))
	hasher := crypto.NewPasswordHasher(bcrypt.MinCost)
	logger := zerolog.Nop()

	users := newMemUserRepo()
	posts := newMemPostRepo()

	userService := service.NewUserService(users, hasher, codec, logger)
	postService := service.NewPostService(posts, users, logger)

	blog, err := NewBlogHandler(BlogConfig{
		UserService: userService,
		PostService: postService,
		Codec:       codec,
		Revoked:     revoked,
		Sessions:    sessions,
		Logger:      logger,
	})
	require.NoError(t, err)

	gate := auth.NewGate(auth.GateConfig{
		Codec:    codec,
		Sessions: sessions,
		Revoked:  revoked,
		Denied:   blog.Denied,
		Logger:   logger,
	})

	router := NewRouter(RouterConfig{Blog: blog, Gate: gate, Logger: logger})

	return &testServer{
		handler:  router.Handler(),
		users:    users,
		posts:    posts,
		keychain: keychain,
		revoked:  revoked,
	}
}

func (ts *testServer) do(t *testing.T, method, target string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, username, email, password string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/register", url.Values{
		"username":  {username},
		"password1": {password},
		"password2": {password},
		"email":     {email},
	}, nil)
	require.Equal(t, http.StatusFound, rec.Code, "registration should redirect")
}

func (ts *testServer) login(t *testing.T, email, password string) []*http.Cookie {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/login", url.Values{
		"email":    {email},
		"password": {password},
	}, nil)
	require.Equal(t, http.StatusFound, rec.Code, "login should succeed")
	return rec.Result().Cookies()
}

// =============================================================================
// Public Page Tests
// =============================================================================

func TestRootRedirectsToHome(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/", nil, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
}

func TestHomeGuestView(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/home", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "guest")
}

func TestHomeDegradesToGuestOnBadToken(t *testing.T) {
	ts := newTestServer(t)

	cookies := []*http.Cookie{
		{Name: "quill_token", Value: "not.a.token"},
		{Name: "quill_login", Value: "true"},
	}
	rec := ts.do(t, http.MethodGet, "/home", nil, cookies)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "guest")
}

func TestHomeShowsUsernameWhenLoggedIn(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	rec := ts.do(t, http.MethodGet, "/home", nil, cookies)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gabriel")
}

func TestAboutPage(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/about", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/home", nil, nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// =============================================================================
// Registration Tests
// =============================================================================

func TestRegisterValidationMessages(t *testing.T) {
	tests := []struct {
		name        string
		form        url.Values
		wantMessage string
	}{
		{
			name: "blank field",
			form: url.Values{
				"username": {""}, "password1": {"secret123"},
				"password2": {"secret123"}, "email": {"a@b.com"},
			},
			wantMessage: "Please do not leave any fields blank",
		},
		{
			name: "missing field entirely",
			form: url.Values{
				"username": {"gabriel"}, "password1": {"secret123"},
				"email": {"a@b.com"},
			},
			wantMessage: "Please do not leave any fields blank",
		},
		{
			name: "invalid email suffix",
			form: url.Values{
				"username": {"gabriel"}, "password1": {"secret123"},
				"password2": {"secret123"}, "email": {"a@b.org"},
			},
			wantMessage: "Please enter a valid E-mail address",
		},
		{
			name: "password mismatch",
			form: url.Values{
				"username": {"gabriel"}, "password1": {"secret123"},
				"password2": {"different"}, "email": {"a@b.com"},
			},
			wantMessage: "The passwords must match",
		},
		{
			name: "password too short",
			form: url.Values{
				"username": {"gabriel"}, "password1": {"abc12"},
				"password2": {"abc12"}, "email": {"a@b.com"},
			},
			wantMessage: "The password must be at least six characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(t, http.MethodPost, "/register", tt.form, nil)

			assert.Equal(t, http.StatusNotAcceptable, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMessage)
		})
	}
}

func TestRegisterDuplicateEmailAndUsername(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")

	rec := ts.do(t, http.MethodPost, "/register", url.Values{
		"username": {"someone"}, "password1": {"secret123"},
		"password2": {"secret123"}, "email": {"gabriel@example.com"},
	}, nil)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Contains(t, rec.Body.String(), "E-mail is already registered please sign in")

	rec = ts.do(t, http.MethodPost, "/register", url.Values{
		"username": {"gabriel"}, "password1": {"secret123"},
		"password2": {"secret123"}, "email": {"other@example.com"},
	}, nil)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Username is already taken")
}

func TestRegisterRedirectsToLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/register", url.Values{
		"username": {"gabriel"}, "password1": {"secret123"},
		"password2": {"secret123"}, "email": {"gabriel@example.com"},
	}, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

// =============================================================================
// Login / Logout Tests
// =============================================================================

func TestLoginSetsSessionCookies(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")

	rec := ts.do(t, http.MethodPost, "/login", url.Values{
		"email": {"gabriel@example.com"}, "password": {"secret123"},
	}, nil)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))

	cookieNames := make(map[string]string)
	for _, c := range rec.Result().Cookies() {
		cookieNames[c.Name] = c.Value
	}
	assert.NotEmpty(t, cookieNames["quill_token"])
	assert.Equal(t, "true", cookieNames["quill_login"])
}

func TestLoginFailureMessagesDoNotLeakAccountExistence(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")

	unknownEmail := ts.do(t, http.MethodPost, "/login", url.Values{
		"email": {"nobody@example.com"}, "password": {"secret123"},
	}, nil)
	wrongPassword := ts.do(t, http.MethodPost, "/login", url.Values{
		"email": {"gabriel@example.com"}, "password": {"wrongpass"},
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Contains(t, unknownEmail.Body.String(), "Username and password could not be verified")
	assert.Contains(t, wrongPassword.Body.String(), "Username and password could not be verified")
}

func TestLoginMissingFields(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/login", url.Values{
		"email": {"gabriel@example.com"},
	}, nil)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please complete all fields to login")
}

func TestAdminLoginShowsUserListing(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	ts.register(t, "admin", "admin@example.com", "secret123")
	adminFlag := true
	ts.users.users["admin"].IsAdmin = &adminFlag

	rec := ts.do(t, http.MethodPost, "/login", url.Values{
		"email": {"admin@example.com"}, "password": {"secret123"},
	}, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "gabriel")
	assert.Contains(t, rec.Body.String(), "gabriel@example.com")
}

func TestLogoutRevokesOnlyCallerSession(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")

	first := ts.login(t, "gabriel@example.com", "secret123")
	second := ts.login(t, "gabriel@example.com", "secret123")

	rec := ts.do(t, http.MethodGet, "/logout", nil, first)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))

	// The logged-out token no longer passes the gate.
	rec = ts.do(t, http.MethodGet, "/posts/new", nil, first)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The other session is untouched.
	rec = ts.do(t, http.MethodGet, "/posts/new", nil, second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// Protected Route Tests
// =============================================================================

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	paths := []string{"/posts/new", "/posts/1/edit", "/posts/1/delete"}
	for _, path := range paths {
		rec := ts.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "path %s", path)
	}
}

func TestProtectedRouteRejectsFalseLoginFlag(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	// Valid token, but the session login flag is flipped off. Both guards
	// must agree before a protected handler runs.
	for _, c := range cookies {
		if c.Name == "quill_login" {
			c.Value = "false"
		}
	}

	rec := ts.do(t, http.MethodGet, "/posts/new", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreatePostFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	rec := ts.do(t, http.MethodPost, "/posts/new", url.Values{
		"title": {"First post"}, "body": {"Hello from Quill."},
	}, cookies)
	require.Equal(t, http.StatusFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/home", nil, nil)
	assert.Contains(t, rec.Body.String(), "First post")
	assert.Contains(t, rec.Body.String(), "Hello from Quill.")
}

func TestCreatePostMissingFields(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	rec := ts.do(t, http.MethodPost, "/posts/new", url.Values{
		"title": {"First post"}, "body": {""},
	}, cookies)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please do not leave any fields blank")
}

func TestEditPostPrefillsForm(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	ts.do(t, http.MethodPost, "/posts/new", url.Values{
		"title": {"First post"}, "body": {"Hello from Quill."},
	}, cookies)

	rec := ts.do(t, http.MethodGet, "/posts/1/edit", nil, cookies)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "First post")
	assert.Contains(t, rec.Body.String(), "Hello from Quill.")
}

func TestEditPostByOwner(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	ts.do(t, http.MethodPost, "/posts/new", url.Values{
		"title": {"First post"}, "body": {"Hello from Quill."},
	}, cookies)

	rec := ts.do(t, http.MethodPost, "/posts/1/edit", url.Values{
		"title": {"Updated"}, "body": {"New body."},
	}, cookies)
	require.Equal(t, http.StatusFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/home", nil, nil)
	assert.Contains(t, rec.Body.String(), "Updated")
	assert.NotContains(t, rec.Body.String(), "First post")
}

func TestEditAndDeleteByNonOwnerForbidden(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	ts.register(t, "intruder", "intruder@example.com", "secret123")

	owner := ts.login(t, "gabriel@example.com", "secret123")
	intruder := ts.login(t, "intruder@example.com", "secret123")

	ts.do(t, http.MethodPost, "/posts/new", url.Values{
		"title": {"First post"}, "body": {"Hello from Quill."},
	}, owner)

	rec := ts.do(t, http.MethodPost, "/posts/1/edit", url.Values{
		"title": {"Hijacked"}, "body": {"Nope."},
	}, intruder)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/posts/1/delete", nil, intruder)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Post is untouched.
	rec = ts.do(t, http.MethodGet, "/home", nil, nil)
	assert.Contains(t, rec.Body.String(), "First post")
}

func TestEditMissingPostNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	rec := ts.do(t, http.MethodGet, "/posts/99/edit", nil, cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Post could not be found")

	rec = ts.do(t, http.MethodGet, "/posts/99/delete", nil, cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePostByOwner(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	ts.do(t, http.MethodPost, "/posts/new", url.Values{
		"title": {"First post"}, "body": {"Hello from Quill."},
	}, cookies)

	rec := ts.do(t, http.MethodGet, "/posts/1/delete", nil, cookies)
	require.Equal(t, http.StatusFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/home", nil, nil)
	assert.NotContains(t, rec.Body.String(), "First post")
}

func TestSecretRotationInvalidatesSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	rec := ts.do(t, http.MethodGet, "/posts/new", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, ts.keychain.Rotate())

	rec = ts.do(t, http.MethodGet, "/posts/new", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResponsesNeverContainPasswordHash(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "gabriel", "gabriel@example.com", "secret123")
	cookies := ts.login(t, "gabriel@example.com", "secret123")

	hash := string(ts.users.users["gabriel"].PasswordHash)

	for _, path := range []string{"/home", "/posts/new"} {
		rec := ts.do(t, http.MethodGet, path, nil, cookies)
		assert.NotContains(t, rec.Body.String(), hash, "path %s", path)
		assert.NotContains(t, rec.Body.String(), "secret123", "path %s", path)
	}
}
