// Package session implements the in-memory bearer session store: a
// concurrent map from opaque tokens to principal snapshots with sliding
// expiry. The store is the single authority for "is this caller currently
// authenticated"; nothing outside this package retains session internals.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/authz"
)

// DefaultTTL is the default inactivity window. Expiry slides from last
// access, not from creation.
const DefaultTTL = 60 * time.Minute

type entry struct {
	principal  authz.Principal
	lastAccess time.Time
}

// Store maps opaque tokens to principal snapshots. All operations are safe
// for concurrent use and atomic with respect to other operations on the
// same token.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	clock   func() time.Time

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	issued      atomic.Uint64
	invalidated atomic.Uint64
}

// NewStore constructs a store with the given inactivity window. A zero or
// negative ttl falls back to DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// TTL returns the configured inactivity window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue stores a fresh session for principal and returns its token. A live
// token is never reused; on the astronomically unlikely collision a new
// token is generated.
func (s *Store) Issue(principal authz.Principal) string {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		token := newToken()
		if _, taken := s.entries[token]; taken {
			continue
		}
		s.entries[token] = &entry{principal: principal, lastAccess: now}
		s.issued.Add(1)
		return token
	}
}

// Lookup resolves token to its principal. A hit refreshes the last-access
// timestamp, extending the session's life. An entry idle for longer than
// the inactivity window is evicted and reported as absent.
func (s *Store) Lookup(token string) (authz.Principal, bool) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		s.misses.Add(1)
		return authz.Principal{}, false
	}
	if now.Sub(e.lastAccess) > s.ttl {
		delete(s.entries, token)
		s.evictions.Add(1)
		s.misses.Add(1)
		return authz.Principal{}, false
	}
	e.lastAccess = now
	s.hits.Add(1)
	return e.principal, true
}

// Invalidate removes the session unconditionally. Invalidating an absent
// token is not an error.
func (s *Store) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[token]; ok {
		delete(s.entries, token)
		s.invalidated.Add(1)
	}
}

// InvalidateUser removes every live session belonging to userID and returns
// the number removed. Used by administrative deactivation.
func (s *Store) InvalidateUser(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, e := range s.entries {
		if e.principal.UserID == userID {
			delete(s.entries, token)
			s.invalidated.Add(1)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired stragglers included
// until the next lookup or sweep touches them.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts every expired entry and returns the eviction count. The lock
// is released between evictions so a large sweep never stalls concurrent
// lookups for more than a single entry's removal.
func (s *Store) Sweep() int {
	now := s.clock()

	s.mu.Lock()
	var stale []string
	for token, e := range s.entries {
		if now.Sub(e.lastAccess) > s.ttl {
			stale = append(stale, token)
		}
	}
	s.mu.Unlock()

	evicted := 0
	for _, token := range stale {
		s.mu.Lock()
		// Recheck: a lookup may have refreshed the entry in the meantime.
		if e, ok := s.entries[token]; ok && now.Sub(e.lastAccess) > s.ttl {
			delete(s.entries, token)
			s.evictions.Add(1)
			evicted++
		}
		s.mu.Unlock()
	}
	return evicted
}

// RunSweeper sweeps periodically until ctx is cancelled. Eviction is also
// performed lazily on lookup, so the sweeper only bounds memory held by
// abandoned sessions.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 10
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Issued      uint64
	Invalidated uint64
	Active      int
}

// Stats returns operational counters for observability.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Evictions:   s.evictions.Load(),
		Issued:      s.issued.Load(),
		Invalidated: s.invalidated.Load(),
		Active:      s.Len(),
	}
}

// newToken returns an unguessable opaque token (256 bits of randomness,
// base64url). Falls back to a random UUID if the system randomness source
// fails, matching the strength floor of 128 bits.
func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
