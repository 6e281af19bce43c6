// Package main is the entry point for the Quill blogging server.
// Quill is a server-rendered multi-user blog with token-based authentication.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/handler"
	"github.com/quillhq/quill/internal/metrics"
	"github.com/quillhq/quill/internal/pkg/crypto"
	"github.com/quillhq/quill/internal/repository"
	"github.com/quillhq/quill/internal/repository/postgres"
	"github.com/quillhq/quill/internal/repository/sqlite"
	"github.com/quillhq/quill/internal/service"
	"github.com/quillhq/quill/internal/session"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting Quill server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories
	users, posts, closeDB, err := newRepositories(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer closeDB()

	// Auth core
	keychain, err := auth.NewKeychain()
	if err != nil {
		return fmt.Errorf("failed to create keychain: %w", err)
	}
	codec := auth.NewCodec(keychain, cfg.Auth.TokenTTL)
	revoked, stopRevoked, err := newRevocationList(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to set up revocation list: %w", err)
	}
	defer stopRevoked()

	sessions := session.NewCookieStore(int(cfg.Auth.TokenTTL / time.Second))
	hasher := crypto.NewPasswordHasher(cfg.Auth.BcryptCost)

	// Services
	userService := service.NewUserService(users, hasher, codec, logger)
	postService := service.NewPostService(posts, users, logger)

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// HTTP surface
	blog, err := handler.NewBlogHandler(handler.BlogConfig{
		UserService: userService,
		PostService: postService,
		Codec:       codec,
		Revoked:     revoked,
		Sessions:    sessions,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create blog handler: %w", err)
	}

	gate := auth.NewGate(auth.GateConfig{
		Codec:    codec,
		Sessions: sessions,
		Revoked:  revoked,
		Denied:   blog.Denied,
		Logger:   logger,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Blog:    blog,
		Gate:    gate,
		Metrics: m,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var metricsServer *http.Server
	if m != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info().Str("addr", metricsServer.Addr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}

	return nil
}

// newRepositories builds the configured repository backend and runs its
// migrations. The returned func closes the underlying connection.
func newRepositories(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (repository.UserRepository, repository.PostRepository, func(), error) {
	if cfg.IsEmbedded() {
		db, err := sqlite.NewDB(ctx, sqlite.Config{
			Path:            cfg.Path,
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			JournalMode:     cfg.JournalMode,
			BusyTimeout:     cfg.BusyTimeout,
			SynchronousMode: cfg.SynchronousMode,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return sqlite.NewUserRepository(db), sqlite.NewPostRepository(db), func() { _ = db.Close() }, nil
	}

	db, err := postgres.NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return postgres.NewUserRepository(db), postgres.NewPostRepository(db), func() { _ = db.Close() }, nil
}

// newRevocationList prefers Redis when enabled so revocations survive
// restarts and are shared across instances; otherwise an in-process list.
func newRevocationList(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (auth.RevocationList, func(), error) {
	if !cfg.Enabled {
		list := auth.NewMemoryRevocationList()
		logger.Info().Msg("using in-memory token revocation list")
		return list, list.Stop, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr()).Msg("using Redis token revocation list")
	return auth.NewRedisRevocationList(client), func() { _ = client.Close() }, nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	var out = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
