package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
)

type storedSession struct {
	payload   []byte
	expiresAt time.Time
}

// InMemoryRepo is a thread-safe in-memory Store used when no redis URL is configured
// and in tests. Sessions are stored encoded so callers never share state, and a background
// loop evicts them once their ttl has passed. Call Close to stop it.
type InMemoryRepo struct {
	sessions *ttlcache.Cache[string, storedSession]
	now      func() time.Time
}

// NewInMemoryRepo creates a new in-memory session repository
func NewInMemoryRepo() *InMemoryRepo {
	c := ttlcache.New(ttlcache.WithDisableTouchOnHit[string, storedSession]())
	go c.Start()
	return &InMemoryRepo{sessions: c, now: time.Now}
}

// WithClock replaces the time source used for expiry checks, for tests. Eviction still
// follows the wall clock.
func (r *InMemoryRepo) WithClock(now func() time.Time) *InMemoryRepo {
	r.now = now
	return r
}

// Close stops the eviction loop.
func (r *InMemoryRepo) Close() {
	r.sessions.Stop()
}

// Len is the number of sessions held, including expired ones not yet evicted.
func (r *InMemoryRepo) Len() int {
	return r.sessions.Len()
}

// Upsert creates or updates a session
func (r *InMemoryRepo) Upsert(_ context.Context, session *Session, ttl time.Duration) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("sessionID is required")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[InMemoryRepo Upsert] encoding session: %w", err)
	}

	r.sessions.Set(session.ID, storedSession{payload: payload, expiresAt: r.now().Add(ttl)}, ttl)
	session.isNew = false
	return nil
}

func (r *InMemoryRepo) live(id string) (storedSession, bool) {
	item := r.sessions.Get(id)
	if item == nil {
		return storedSession{}, false
	}
	stored := item.Value()
	if !r.now().Before(stored.expiresAt) {
		r.sessions.Delete(id)
		return storedSession{}, false
	}
	return stored, true
}

// Get retrieves a session that has not yet expired
func (r *InMemoryRepo) Get(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperrors.ErrSessionNotFound
	}
	stored, ok := r.live(id)
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}

	var s Session
	if err := json.Unmarshal(stored.payload, &s); err != nil {
		return nil, fmt.Errorf("[InMemoryRepo Get] decoding session: %w", err)
	}
	return &s, nil
}

// Touch pushes the expiry of an existing session out by ttl
func (r *InMemoryRepo) Touch(_ context.Context, id string, ttl time.Duration) error {
	stored, ok := r.live(id)
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	stored.expiresAt = r.now().Add(ttl)
	r.sessions.Set(id, stored, ttl)
	return nil
}

// Delete removes a session
func (r *InMemoryRepo) Delete(_ context.Context, id string) error {
	r.sessions.Delete(id) // Already doesn't exist, no error
	return nil
}
