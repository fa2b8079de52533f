package config

import "time"

type SessionConfig interface {
	GetRedisURL() string
	GetRedisKeyPrefix() string
	GetSessionTTL() time.Duration
	GetSessionCookieName() string
	GetCookieSecure() bool
}

type Session struct {
	RedisURL   string        `env:"REDIS_URL"`
	KeyPrefix  string        `env:"REDIS_KEY_PREFIX" envDefault:"pcs:"`
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"30m"` // Sessions expire after 30 minutes of inactivity
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"pcs-session"`
}

// GetRedisURL returns the redis connection string; empty selects the in-memory store.
func (s Session) GetRedisURL() string {
	return s.RedisURL
}

func (s Session) GetRedisKeyPrefix() string {
	return s.KeyPrefix
}

func (s Session) GetSessionTTL() time.Duration {
	return s.TTL
}

func (s Session) GetSessionCookieName() string {
	return s.CookieName
}
