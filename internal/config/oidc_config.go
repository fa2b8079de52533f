package config

import (
	"strings"
	"time"
)

const (
	// StrategyOIDC discovers endpoints from the issuer's openid-configuration document.
	StrategyOIDC = "oidc"
	// StrategyIdam uses statically configured IDAM endpoints.
	StrategyIdam = "idam"
)

type OIDCConfig interface {
	GetOIDCStrategy() string
	GetIssuer() string
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetPostLogoutRedirectURI() string
	GetScopes() []string
	GetIdamWebURL() string
	GetIdamAPIURL() string
	GetDiscoveryTimeout() time.Duration
	GetTokenCacheTTL() time.Duration
}

type OIDC struct {
	Strategy              string        `env:"OIDC_STRATEGY" envDefault:"oidc"`
	Issuer                string        `env:"OIDC_ISSUER"`
	ClientID              string        `env:"OIDC_CLIENT_ID" envDefault:"pcs-frontend"`
	ClientSecret          string        `env:"OIDC_CLIENT_SECRET"`
	RedirectURI           string        `env:"OIDC_REDIRECT_URI"`
	PostLogoutRedirectURI string        `env:"OIDC_POST_LOGOUT_REDIRECT_URI"`
	Scope                 string        `env:"OIDC_SCOPE" envDefault:"openid profile roles"`
	IdamWebURL            string        `env:"IDAM_WEB_URL"`
	IdamAPIURL            string        `env:"IDAM_API_URL"`
	DiscoveryTimeout      time.Duration `env:"OIDC_DISCOVERY_TIMEOUT" envDefault:"10s"`
	TokenCacheTTL         time.Duration `env:"TOKEN_CACHE_TTL" envDefault:"5m"`
}

func (o OIDC) GetOIDCStrategy() string {
	return o.Strategy
}

func (o OIDC) GetIssuer() string {
	return o.Issuer
}

func (o OIDC) GetClientID() string {
	return o.ClientID
}

func (o OIDC) GetClientSecret() string {
	return o.ClientSecret
}

func (o OIDC) GetScopes() []string {
	return strings.Fields(o.Scope)
}

func (o OIDC) GetIdamWebURL() string {
	return o.IdamWebURL
}

func (o OIDC) GetIdamAPIURL() string {
	return o.IdamAPIURL
}

func (o OIDC) GetDiscoveryTimeout() time.Duration {
	return o.DiscoveryTimeout
}

func (o OIDC) GetTokenCacheTTL() time.Duration {
	return o.TokenCacheTTL
}
