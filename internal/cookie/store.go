// Package cookie owns server-side cookie issuance.
package cookie

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/cpnet/internal/protocol"
)

const (
	DefaultCapacity = 20
	DefaultTTL      = 60 * time.Second
)

// Cookie is one issued session token.
type Cookie struct {
	Value     int
	CreatedAt time.Time
}

// ExpiresAt is zero when ttl is not positive.
func (c Cookie) ExpiresAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.CreatedAt.Add(ttl)
}

// Entry is a read-only view of one store slot.
type Entry struct {
	ClientID  string
	CreatedAt time.Time
	Remaining time.Duration
}

type Config struct {
	Capacity int
	// TTL bounds cookie lifetime; expired entries are evicted on admission.
	// Zero keeps cookies until Remove.
	TTL time.Duration
	Now func() time.Time
	// Rand mints cookie values; seeded from the clock when nil.
	Rand *rand.Rand
}

func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		TTL:      DefaultTTL,
	}
}

// Store maps client identity to at most one live cookie.
type Store struct {
	mu       sync.Mutex
	entries  map[string]Cookie
	capacity int
	ttl      time.Duration
	now      func() time.Time
	rng      *rand.Rand
}

func NewStore(cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Store{
		entries:  make(map[string]Cookie, cfg.Capacity),
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		rng:      cfg.Rand,
	}
}

// Admit answers one cookie request from clientID.
// A current holder is refused rather than renewed, so a full store frees
// slots only through expiry or Remove.
func (s *Store) Admit(clientID string) protocol.CookieResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictExpiredLocked(now)

	if _, ok := s.entries[clientID]; ok {
		return protocol.CookieResponse{Reason: protocol.ReasonActiveCookieExists}
	}
	if len(s.entries) >= s.capacity {
		return protocol.CookieResponse{Reason: protocol.ReasonTooManyCookies}
	}
	c := Cookie{Value: int(int32(s.rng.Uint32())), CreatedAt: now}
	s.entries[clientID] = c
	return protocol.CookieResponse{Success: true, Value: c.Value}
}

// Lookup returns the live cookie held by clientID.
func (s *Store) Lookup(clientID string) (Cookie, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.entries[clientID]
	if !ok || s.expired(c, s.now()) {
		return Cookie{}, false
	}
	return c, true
}

// Remaining reports the time left on the live cookie with value.
// With no TTL configured the remaining time is zero and ok is true.
func (s *Store) Remaining(value int) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, c := range s.entries {
		if c.Value != value || s.expired(c, now) {
			continue
		}
		if s.ttl <= 0 {
			return 0, true
		}
		return c.ExpiresAt(s.ttl).Sub(now), true
	}
	return 0, false
}

func (s *Store) Remove(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, clientID)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Snapshot lists live entries ordered by client id. Cookie values are omitted.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]Entry, 0, len(s.entries))
	for id, c := range s.entries {
		if s.expired(c, now) {
			continue
		}
		e := Entry{ClientID: id, CreatedAt: c.CreatedAt}
		if s.ttl > 0 {
			e.Remaining = c.ExpiresAt(s.ttl).Sub(now)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClientID < out[j].ClientID
	})
	return out
}

func (s *Store) evictExpiredLocked(now time.Time) {
	for id, c := range s.entries {
		if s.expired(c, now) {
			delete(s.entries, id)
		}
	}
}

func (s *Store) expired(c Cookie, now time.Time) bool {
	return s.ttl > 0 && !now.Before(c.ExpiresAt(s.ttl))
}
