package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/metrics"
)

// Router wires the blog routes onto a chi mux.
type Router struct {
	blog    *BlogHandler
	gate    *auth.Gate
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Blog    *BlogHandler
	Gate    *auth.Gate
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		blog:    cfg.Blog,
		gate:    cfg.Gate,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
	}

	// Public pages
	r.Get("/", rt.blog.handleRoot)
	r.Get("/home", rt.blog.handleHome)
	r.Get("/about", rt.blog.handleAbout)
	r.Get("/health", rt.blog.handleHealth)

	r.Get("/login", rt.blog.handleLoginPage)
	r.Post("/login", rt.blog.handleLogin)
	r.Get("/register", rt.blog.handleRegisterPage)
	r.Post("/register", rt.blog.handleRegister)
	r.Get("/logout", rt.blog.handleLogout)

	// Protected post routes behind the auth gate
	r.Group(func(r chi.Router) {
		r.Use(rt.gate.Middleware)

		r.Get("/posts/new", rt.blog.handleCreatePostPage)
		r.Post("/posts/new", rt.blog.handleCreatePost)
		r.Get("/posts/{id}/edit", rt.blog.handleEditPostPage)
		r.Post("/posts/{id}/edit", rt.blog.handleEditPost)
		r.Get("/posts/{id}/delete", rt.blog.handleDeletePost)
	})

	return r
}
