// Package auth provides token-based authentication for Quill: a rotating
// signing keychain, an HS256 token codec, a revocation list, and the gate
// middleware that protects mutating routes.
package auth

import (
	"crypto/rand"
	"fmt"
	"sync"
)

// secretLen is the size of the HMAC signing secret in bytes.
const secretLen = 32

// Keychain holds the process-wide token signing secret. The secret is
// generated randomly at construction and may be rotated at runtime; rotation
// invalidates every token signed under the previous secret, for every user
// at once. Reads and rotation are guarded so concurrent request handling
// always sees a complete secret.
type Keychain struct {
	mu     sync.RWMutex
	secret []byte
}

// NewKeychain creates a Keychain with a fresh random secret.
func NewKeychain() (*Keychain, error) {
	secret, err := randomSecret()
	if err != nil {
		return nil, err
	}
	return &Keychain{secret: secret}, nil
}

// Secret returns a copy of the current signing secret.
func (k *Keychain) Secret() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]byte, len(k.secret))
	copy(out, k.secret)
	return out
}

// Rotate replaces the signing secret with a fresh random one. Every token
// issued under the old secret fails signature verification afterwards.
// Requests mid-flight under the old secret may succeed or fail depending on
// timing; this is accepted.
func (k *Keychain) Rotate() error {
	secret, err := randomSecret()
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.secret = secret
	k.mu.Unlock()
	return nil
}

func randomSecret() ([]byte, error) {
	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return secret, nil
}
