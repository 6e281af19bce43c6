package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of an issued token.
const DefaultTokenTTL = 3 * time.Hour

// Claims is the fixed, typed content of a session token. Tokens carry the
// username, an explicit login-status flag (always true at issue), a unique
// JTI for revocation, and the registered expiry.
type Claims struct {
	Username string `json:"username"`
	LoggedIn bool   `json:"user_login_status"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed session tokens. Tokens are HS256 JWTs
// signed with the keychain's current secret; clients cannot forge a valid
// token without it.
type Codec struct {
	keychain *Keychain
	ttl      time.Duration
}

// NewCodec creates a Codec signing with the given keychain. A non-positive
// ttl falls back to DefaultTokenTTL.
func NewCodec(keychain *Keychain, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Codec{keychain: keychain, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue produces a signed token asserting the given user is logged in,
// expiring ttl from now.
func (c *Codec) Issue(username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		LoggedIn: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.keychain.Secret())
}

// Verify parses and validates a token against the current signing secret.
// It fails with ErrTokenMalformed for unparseable input, ErrTokenSignature
// when the signature does not match (e.g. the secret rotated), and
// ErrTokenExpired when the expiry has passed. On success it returns the
// embedded claims.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrTokenSignature
		}
		return c.keychain.Secret(), nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenMalformed
		}
	}

	if !token.Valid {
		return nil, ErrTokenSignature
	}
	if claims.Username == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// RemainingTTL returns how long until the claims expire, clamped at zero.
// The revocation list uses this so revoked entries live exactly as long as
// the token they block.
func (cl *Claims) RemainingTTL(now time.Time) time.Duration {
	if cl.ExpiresAt == nil {
		return 0
	}
	remaining := cl.ExpiresAt.Time.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
