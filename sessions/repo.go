package sessions

import (
	"context"
	"time"
)

// Store persists sessions by id. Implementations enforce the TTL themselves and report
// unknown or expired ids with errors.ErrSessionNotFound.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Upsert(ctx context.Context, session *Session, ttl time.Duration) error
	Touch(ctx context.Context, id string, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
