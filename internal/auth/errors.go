package auth

import "errors"

// Authentication errors. The gate collapses every verification failure into
// ErrInvalidToken so the only observable outcome is "re-authenticate"; the
// finer-grained sentinels exist for logging and for codec tests.
var (
	// ErrNoToken indicates the client session carries no token at all.
	ErrNoToken = errors.New("no token in session")

	// ErrTokenMalformed indicates the token structure could not be parsed.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenSignature indicates the signature does not verify against the
	// current signing secret (forged, or the secret has rotated).
	ErrTokenSignature = errors.New("token signature is invalid")

	// ErrTokenExpired indicates the token's expiry has passed.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenRevoked indicates the token was revoked by logout.
	ErrTokenRevoked = errors.New("token has been revoked")

	// ErrNotLoggedIn indicates the claims lack an affirmative login status.
	ErrNotLoggedIn = errors.New("token does not assert login status")

	// ErrInvalidToken is the collapsed outcome presented to callers for any
	// malformed, unsigned, expired, or revoked token.
	ErrInvalidToken = errors.New("invalid token")
)
