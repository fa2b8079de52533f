package config

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	OIDCConfig
	S2SConfig
	SessionConfig
	DocumentsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	IsDev() bool
}

type mainConfig struct {
	EnvVars
	OIDC
	S2S
	Session
	Documents
}

// Load reads a .env file when present and then parses the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := &mainConfig{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("[config Load] parsing environment: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("[config Load] %w", err)
	}
	return c, nil
}

func (c *mainConfig) validate() error {
	switch c.OIDC.Strategy {
	case StrategyOIDC, StrategyIdam:
	default:
		return fmt.Errorf("OIDC_STRATEGY must be %q or %q, got %q", StrategyOIDC, StrategyIdam, c.OIDC.Strategy)
	}
	if c.OIDC.Strategy == StrategyIdam && (c.OIDC.IdamWebURL == "" || c.OIDC.IdamAPIURL == "") {
		return fmt.Errorf("IDAM_WEB_URL and IDAM_API_URL are required for the %q strategy", StrategyIdam)
	}
	if c.S2S.URL != "" && c.S2S.Secret == "" {
		return fmt.Errorf("S2S_SECRET is required when S2S_URL is set")
	}
	if c.S2S.TTL <= 0 {
		return fmt.Errorf("S2S_TTL must be positive")
	}
	if c.S2S.Secret != "" {
		if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimRight(c.S2S.Secret, "="))); err != nil {
			return fmt.Errorf("S2S_SECRET must be base32 encoded: %w", err)
		}
	}
	if c.Documents.MaxUploadBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	return nil
}

// GetRedirectURI defaults to the callback route on the public base URL.
func (c *mainConfig) GetRedirectURI() string {
	if c.OIDC.RedirectURI != "" {
		return c.OIDC.RedirectURI
	}
	return strings.TrimRight(c.EnvVars.BaseURL, "/") + "/oauth2/callback"
}

// GetPostLogoutRedirectURI defaults to the public base URL.
func (c *mainConfig) GetPostLogoutRedirectURI() string {
	if c.OIDC.PostLogoutRedirectURI != "" {
		return c.OIDC.PostLogoutRedirectURI
	}
	return strings.TrimRight(c.EnvVars.BaseURL, "/") + "/"
}

// GetCookieSecure only marks the session cookie secure outside of development.
func (c *mainConfig) GetCookieSecure() bool {
	return !c.EnvVars.IsDev()
}
