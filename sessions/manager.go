package sessions

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
)

type contextKey struct{}

// ManagerOptions configures the session cookie.
type ManagerOptions struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager maps the session cookie onto a Store record. The cookie only ever carries the
// opaque session id.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

func NewManager(store Store, opts ManagerOptions) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "pcs-session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	return &Manager{
		store:      store,
		cookieName: opts.CookieName,
		ttl:        opts.TTL,
		secure:     opts.Secure,
		now:        time.Now,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// Load returns the session named by the request cookie, or a fresh unsaved session when
// there is no cookie or the store no longer knows the id.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	s, err := m.Existing(r)
	if err == nil {
		return s, nil
	}
	if !apperrors.Is(err, apperrors.ErrSessionNotFound) {
		return nil, err
	}
	return New(uuid.NewString(), m.now()), nil
}

// Existing only returns a session that is already persisted.
func (m *Manager) Existing(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, apperrors.ErrSessionNotFound
	}
	s, err := m.store.Get(r.Context(), cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("[Manager Existing] %w", err)
	}
	return s, nil
}

// Save persists the session and (re)issues the cookie with a fresh max-age.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Upsert(ctx, s, m.ttl); err != nil {
		return fmt.Errorf("[Manager Save] %w", err)
	}
	m.setCookie(w, s.ID, int(m.ttl.Seconds()))
	return nil
}

// Extend pushes out the expiry of an existing session without rewriting it.
func (m *Manager) Extend(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Touch(ctx, s.ID, m.ttl); err != nil {
		return fmt.Errorf("[Manager Extend] %w", err)
	}
	m.setCookie(w, s.ID, int(m.ttl.Seconds()))
	return nil
}

// Regenerate moves the session onto a new id and deletes the record stored under the old one.
// The next Save issues the cookie for the new id. The id changes even when the delete fails.
func (m *Manager) Regenerate(ctx context.Context, s *Session) error {
	oldID, wasNew := s.ID, s.IsNew()
	s.ID = uuid.NewString()
	s.isNew = true
	if wasNew || oldID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, oldID); err != nil {
		return fmt.Errorf("[Manager Regenerate] %w", err)
	}
	return nil
}

// Destroy removes the record and expires the cookie. The cookie is expired even when the
// store delete fails.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	m.setCookie(w, "", -1)
	if s == nil || s.IsNew() {
		return nil
	}
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("[Manager Destroy] %w", err)
	}
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// NewContext stores the request's session in ctx.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session placed on the context by the session middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
