package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationList records token IDs that were invalidated before their
// natural expiry. Logout revokes only the caller's token, so one user
// logging out never ends anyone else's session. Entries need to live no
// longer than the token they block.
type RevocationList interface {
	// Revoke marks the token ID as revoked for the given duration.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsRevoked reports whether the token ID has been revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocationList implements RevocationList in process memory.
// Suitable for single-node deployments where Redis is not available.
type MemoryRevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	stopCh  chan struct{}
	stopped bool
}

// NewMemoryRevocationList creates an in-memory revocation list with a
// background sweep of expired entries.
func NewMemoryRevocationList() *MemoryRevocationList {
	l := &MemoryRevocationList{
		entries: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Revoke marks the token ID as revoked until ttl elapses.
func (l *MemoryRevocationList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	l.mu.Lock()
	l.entries[tokenID] = time.Now().Add(ttl)
	l.mu.Unlock()
	return nil
}

// IsRevoked reports whether the token ID has an unexpired revocation entry.
func (l *MemoryRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	l.mu.RLock()
	expiry, ok := l.entries[tokenID]
	l.mu.RUnlock()
	return ok && time.Now().Before(expiry), nil
}

// Stop stops the cleanup goroutine.
func (l *MemoryRevocationList) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
}

// cleanupLoop periodically removes expired entries.
func (l *MemoryRevocationList) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *MemoryRevocationList) cleanup() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, expiry := range l.entries {
		if now.After(expiry) {
			delete(l.entries, id)
		}
	}
}

// Ensure MemoryRevocationList implements RevocationList.
var _ RevocationList = (*MemoryRevocationList)(nil)
