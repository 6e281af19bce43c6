package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/quillhq/quill/internal/session"
)

// claimsContextKey is the context key for verified claims.
type claimsContextKey struct{}

// Gate guards protected routes. A request passes only when its session
// carries a token that parses, verifies against the current secret, has not
// expired, asserts an affirmative login status, and has not been revoked.
// Any failure produces the same observable outcome: the denied handler runs
// and the wrapped operation never executes.
type Gate struct {
	codec    *Codec
	sessions session.Store
	revoked  RevocationList
	denied   http.HandlerFunc
	logger   zerolog.Logger
}

// GateConfig contains configuration for the gate.
type GateConfig struct {
	Codec    *Codec
	Sessions session.Store
	Revoked  RevocationList
	// Denied handles rejected requests; it should prompt re-authentication.
	Denied http.HandlerFunc
	Logger zerolog.Logger
}

// NewGate creates an authentication gate.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		codec:    cfg.Codec,
		sessions: cfg.Sessions,
		revoked:  cfg.Revoked,
		denied:   cfg.Denied,
		logger:   cfg.Logger.With().Str("component", "auth_gate").Logger(),
	}
}

// Middleware wraps a handler with the gate's checks. On success the verified
// claims are injected into the request context for the handler.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Check(r)
		if err != nil {
			g.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request denied")
			g.denied(w, r)
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims))
		next.ServeHTTP(w, r)
	})
}

// Check runs the gate's verification chain against a request and returns the
// verified claims. Every failure mode beyond a missing token collapses into
// ErrInvalidToken.
func (g *Gate) Check(r *http.Request) (*Claims, error) {
	state := g.sessions.Get(r)
	if state.Token == "" {
		return nil, ErrNoToken
	}

	claims, err := g.codec.Verify(state.Token)
	if err != nil {
		g.logger.Debug().Err(err).Msg("token verification failed")
		return nil, ErrInvalidToken
	}

	if !claims.LoggedIn {
		g.logger.Debug().Err(ErrNotLoggedIn).Str("token_id", claims.ID).Msg("token rejected")
		return nil, ErrInvalidToken
	}

	if g.revoked != nil && claims.ID != "" {
		revoked, err := g.revoked.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			g.logger.Error().Err(err).Msg("revocation check failed")
			return nil, ErrInvalidToken
		}
		if revoked {
			g.logger.Debug().Err(ErrTokenRevoked).Str("token_id", claims.ID).Msg("token rejected")
			return nil, ErrInvalidToken
		}
	}

	return claims, nil
}

// ClaimsFrom retrieves verified claims from a request context. The second
// return value is false when the request did not pass the gate.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}
