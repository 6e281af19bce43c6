// Package handler provides the HTTP surface for the Quill blog.
package handler

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/metrics"
	"github.com/quillhq/quill/internal/service"
	"github.com/quillhq/quill/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// BlogHandler handles all blog page requests.
type BlogHandler struct {
	userService *service.UserService
	postService *service.PostService
	codec       *auth.Codec
	revoked     auth.RevocationList
	sessions    session.Store
	metrics     *metrics.Metrics
	templates   *template.Template
	logger      zerolog.Logger
}

// BlogConfig contains configuration for the blog handler.
type BlogConfig struct {
	UserService *service.UserService
	PostService *service.PostService
	Codec       *auth.Codec
	Revoked     auth.RevocationList
	Sessions    session.Store
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// NewBlogHandler creates a new blog handler.
func NewBlogHandler(cfg BlogConfig) (*BlogHandler, error) {
	// Parse templates
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &BlogHandler{
		userService: cfg.UserService,
		postService: cfg.PostService,
		codec:       cfg.Codec,
		revoked:     cfg.Revoked,
		sessions:    cfg.Sessions,
		metrics:     cfg.Metrics,
		templates:   tmpl,
		logger:      cfg.Logger.With().Str("handler", "blog").Logger(),
	}, nil
}

// =============================================================================
// Template Data Structs
// =============================================================================

// PageData contains common page data.
type PageData struct {
	Title    string
	Username string
	LoggedIn bool
	Error    string
}

// HomePageData contains home page data.
type HomePageData struct {
	PageData
	Posts []*domain.Post
}

// PostFormPageData contains create/edit form page data.
type PostFormPageData struct {
	PageData
	Post *domain.Post
}

// AdminPageData contains admin user listing page data.
type AdminPageData struct {
	PageData
	Users []*domain.User
}

// =============================================================================
// Public Pages
// =============================================================================

func (h *BlogHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/home", http.StatusFound)
}

// handleHome renders the post list. A session whose login flag or token does
// not hold up degrades to the guest view rather than failing the page.
func (h *BlogHandler) handleHome(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postService.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load posts")
		h.renderError(w, "Failed to load posts")
		return
	}

	data := HomePageData{
		PageData: PageData{Title: "Home - Quill", Username: "guest"},
		Posts:    posts,
	}

	state := h.sessions.Get(r)
	if state.LoggedIn && state.Token != "" {
		claims, err := h.codec.Verify(state.Token)
		if err != nil {
			h.logger.Debug().Err(err).Msg("stale token on home, rendering guest view")
		} else {
			data.Username = claims.Username
			data.LoggedIn = true
		}
	}

	h.render(w, http.StatusOK, "home.html", data)
}

func (h *BlogHandler) handleAbout(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "about.html", PageData{Title: "About - Quill"})
}

func (h *BlogHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// =============================================================================
// Registration
// =============================================================================

func (h *BlogHandler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "register.html", PageData{Title: "Register - Quill"})
}

func (h *BlogHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderRegisterError(w, "Please do not leave any fields blank")
		return
	}

	input := service.RegisterInput{}
	input.Username, input.HasUsername = formValue(r, "username")
	input.Password1, input.HasPassword1 = formValue(r, "password1")
	input.Password2, input.HasPassword2 = formValue(r, "password2")
	input.Email, input.HasEmail = formValue(r, "email")

	_, err := h.userService.Register(r.Context(), input)
	if err != nil {
		h.renderRegisterError(w, registerMessage(err))
		return
	}

	http.Redirect(w, r, "/login", http.StatusFound)
}

// registerMessage maps a registration failure to its user-facing message.
func registerMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrMissingFields):
		return "Please do not leave any fields blank"
	case errors.Is(err, service.ErrInvalidEmail):
		return "Please enter a valid E-mail address"
	case errors.Is(err, service.ErrPasswordMismatch):
		return "The passwords must match"
	case errors.Is(err, service.ErrPasswordTooShort):
		return "The password must be at least six characters"
	case errors.Is(err, service.ErrEmailTaken):
		return "E-mail is already registered please sign in"
	case errors.Is(err, service.ErrUsernameTaken):
		return "Username is already taken"
	case errors.Is(err, service.ErrFieldTooLong):
		return "Fields exceed the maximum allowed length"
	default:
		return "Registration failed, please try again"
	}
}

// =============================================================================
// Login / Logout
// =============================================================================

func (h *BlogHandler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", PageData{Title: "Login - Quill"})
}

func (h *BlogHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, http.StatusNotAcceptable, "Please complete all fields to login")
		return
	}

	input := service.LoginInput{}
	input.Email, input.HasEmail = formValue(r, "email")
	input.Password, input.HasPassword = formValue(r, "password")

	output, err := h.userService.Login(r.Context(), input)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLogin("failure")
		}
		switch {
		case errors.Is(err, service.ErrMissingFields):
			h.renderLoginError(w, http.StatusNotAcceptable, "Please complete all fields to login")
		case errors.Is(err, domain.ErrInvalidCredentials):
			h.renderLoginError(w, http.StatusUnauthorized, "Username and password could not be verified")
		default:
			h.logger.Error().Err(err).Msg("login failed")
			h.renderError(w, "Login failed, please try again")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin("success")
	}

	state := &session.State{
		Token:    output.Token,
		LoggedIn: true,
		Admin:    output.User.HasAdminAccess(),
	}
	h.sessions.Save(w, r, state)

	// Admin users land on the user listing instead of the home page.
	if state.Admin {
		users, err := h.userService.ListUsers(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to load admin user list")
			h.renderError(w, "Failed to load users")
			return
		}
		data := AdminPageData{
			PageData: PageData{
				Title:    "Users - Quill",
				Username: output.User.Username,
				LoggedIn: true,
			},
			Users: users,
		}
		h.render(w, http.StatusFound, "admin.html", data)
		return
	}

	http.Redirect(w, r, "/home", http.StatusFound)
}

// handleLogout revokes the caller's token and clears the session. The token
// stays on the revocation list for its remaining lifetime, so only this
// session ends; other sessions keep their tokens.
func (h *BlogHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	state := h.sessions.Get(r)
	if state.Token != "" {
		if claims, err := h.codec.Verify(state.Token); err == nil && claims.ID != "" {
			ttl := claims.RemainingTTL(time.Now())
			if err := h.revoked.Revoke(r.Context(), claims.ID, ttl); err != nil {
				h.logger.Error().Err(err).Msg("failed to revoke token on logout")
			} else {
				h.logger.Info().Str("username", claims.Username).Msg("user logged out")
			}
		}
	}

	h.sessions.Clear(w, r)
	http.Redirect(w, r, "/home", http.StatusFound)
}

// Denied is the auth gate's rejection handler: prompt re-authentication.
func (h *BlogHandler) Denied(w http.ResponseWriter, r *http.Request) {
	h.renderLoginError(w, http.StatusUnauthorized, "")
}

// =============================================================================
// Protected Post Handlers
// =============================================================================

// requireLogin re-checks the session login flag behind the auth gate. Both
// the gate and this flag must agree before a protected handler proceeds.
func (h *BlogHandler) requireLogin(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		h.renderLoginError(w, http.StatusUnauthorized, "")
		return nil, false
	}
	if state := h.sessions.Get(r); !state.LoggedIn {
		h.logger.Debug().Str("username", claims.Username).Msg("session login flag disagrees with token")
		h.renderLoginError(w, http.StatusUnauthorized, "")
		return nil, false
	}
	return claims, true
}

func (h *BlogHandler) handleCreatePostPage(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireLogin(w, r)
	if !ok {
		return
	}

	data := PostFormPageData{
		PageData: PageData{Title: "New Post - Quill", Username: claims.Username, LoggedIn: true},
	}
	h.render(w, http.StatusOK, "create_post.html", data)
}

func (h *BlogHandler) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireLogin(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderPostFormError(w, "create_post.html", nil, "Please do not leave any fields blank")
		return
	}

	input := service.PostInput{}
	input.Title, input.HasTitle = formValue(r, "title")
	input.Body, input.HasBody = formValue(r, "body")

	_, err := h.postService.Create(r.Context(), claims.Username, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			h.renderPostFormError(w, "create_post.html", nil, "Please do not leave any fields blank")
		case errors.Is(err, service.ErrFieldTooLong):
			h.renderPostFormError(w, "create_post.html", nil, "Fields exceed the maximum allowed length")
		case errors.Is(err, domain.ErrUserNotFound):
			h.renderLoginError(w, http.StatusUnauthorized, "")
		default:
			h.logger.Error().Err(err).Msg("failed to create post")
			h.renderError(w, "Failed to create post")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.RecordPostOperation("create")
	}

	http.Redirect(w, r, "/home", http.StatusFound)
}

func (h *BlogHandler) handleEditPostPage(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireLogin(w, r)
	if !ok {
		return
	}

	id, err := postID(r)
	if err != nil {
		h.renderPostNotFound(w, claims.Username)
		return
	}

	post, err := h.postService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			h.renderPostNotFound(w, claims.Username)
			return
		}
		h.logger.Error().Err(err).Int64("post_id", id).Msg("failed to load post")
		h.renderError(w, "Failed to load post")
		return
	}

	data := PostFormPageData{
		PageData: PageData{Title: "Edit Post - Quill", Username: claims.Username, LoggedIn: true},
		Post:     post,
	}
	h.render(w, http.StatusOK, "update_post.html", data)
}

func (h *BlogHandler) handleEditPost(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireLogin(w, r)
	if !ok {
		return
	}

	id, err := postID(r)
	if err != nil {
		h.renderPostNotFound(w, claims.Username)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderPostFormError(w, "update_post.html", nil, "Please do not leave any fields blank")
		return
	}

	input := service.PostInput{}
	input.Title, input.HasTitle = formValue(r, "title")
	input.Body, input.HasBody = formValue(r, "body")

	_, err = h.postService.Update(r.Context(), claims.Username, id, input)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPostNotFound):
			h.renderPostNotFound(w, claims.Username)
		case errors.Is(err, service.ErrMissingFields):
			post, _ := h.postService.Get(r.Context(), id)
			h.renderPostFormError(w, "update_post.html", post, "Please do not leave any fields blank")
		case errors.Is(err, service.ErrFieldTooLong):
			post, _ := h.postService.Get(r.Context(), id)
			h.renderPostFormError(w, "update_post.html", post, "Fields exceed the maximum allowed length")
		case errors.Is(err, domain.ErrNotOwner):
			h.renderLoginError(w, http.StatusForbidden, "")
		default:
			h.logger.Error().Err(err).Int64("post_id", id).Msg("failed to update post")
			h.renderError(w, "Failed to update post")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.RecordPostOperation("update")
	}

	http.Redirect(w, r, "/home", http.StatusFound)
}

func (h *BlogHandler) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireLogin(w, r)
	if !ok {
		return
	}

	id, err := postID(r)
	if err != nil {
		h.renderPostNotFound(w, claims.Username)
		return
	}

	if err := h.postService.Delete(r.Context(), claims.Username, id); err != nil {
		switch {
		case errors.Is(err, domain.ErrPostNotFound):
			h.renderPostNotFound(w, claims.Username)
		case errors.Is(err, domain.ErrNotOwner):
			h.renderLoginError(w, http.StatusForbidden, "")
		default:
			h.logger.Error().Err(err).Int64("post_id", id).Msg("failed to delete post")
			h.renderError(w, "Failed to delete post")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.RecordPostOperation("delete")
	}

	http.Redirect(w, r, "/home", http.StatusFound)
}

// =============================================================================
// Helper Methods
// =============================================================================

// formValue returns a form field and whether it was present at all. The
// distinction feeds the presence-before-emptiness ordering of the validation
// pipelines.
func formValue(r *http.Request, name string) (string, bool) {
	values, ok := r.PostForm[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func postID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *BlogHandler) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error().Err(err).Str("template", name).Msg("failed to render template")
	}
}

func (h *BlogHandler) renderError(w http.ResponseWriter, message string) {
	h.render(w, http.StatusInternalServerError, "error.html", PageData{
		Title: "Error - Quill",
		Error: message,
	})
}

func (h *BlogHandler) renderLoginError(w http.ResponseWriter, status int, message string) {
	h.render(w, status, "login.html", PageData{
		Title: "Login - Quill",
		Error: message,
	})
}

func (h *BlogHandler) renderRegisterError(w http.ResponseWriter, message string) {
	h.render(w, http.StatusNotAcceptable, "register.html", PageData{
		Title: "Register - Quill",
		Error: message,
	})
}

func (h *BlogHandler) renderPostFormError(w http.ResponseWriter, name string, post *domain.Post, message string) {
	title := "New Post - Quill"
	if name == "update_post.html" {
		title = "Edit Post - Quill"
	}
	h.render(w, http.StatusNotAcceptable, name, PostFormPageData{
		PageData: PageData{Title: title, LoggedIn: true, Error: message},
		Post:     post,
	})
}

func (h *BlogHandler) renderPostNotFound(w http.ResponseWriter, username string) {
	h.render(w, http.StatusNotFound, "home.html", HomePageData{
		PageData: PageData{
			Title:    "Home - Quill",
			Username: username,
			LoggedIn: true,
			Error:    "Post could not be found",
		},
	})
}
