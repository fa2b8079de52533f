package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/possession-claims-frontend/internal/config"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"golang.org/x/oauth2"
)

// Provider is the resolved set of identity provider endpoints for one strategy.
type Provider struct {
	Strategy      string
	Endpoint      oauth2.Endpoint
	UserInfoURL   string
	EndSessionURL string
	// SupportsPKCE is true when the provider advertises S256 code challenges. Without it the
	// login also carries a nonce.
	SupportsPKCE bool

	verifier *oidc.IDTokenVerifier
}

type discoveryClaims struct {
	EndSessionEndpoint            string   `json:"end_session_endpoint"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

// discoverOIDC reads the issuer's openid-configuration document.
func discoverOIDC(ctx context.Context, issuer, clientID string) (*Provider, error) {
	if issuer == "" {
		return nil, fmt.Errorf("[auth discoverOIDC] %w: OIDC_ISSUER is not set", apperrors.ErrProviderUnavailable)
	}
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("[auth discoverOIDC] %w: %w", apperrors.ErrProviderUnavailable, err)
	}

	var claims discoveryClaims
	if err := p.Claims(&claims); err != nil {
		return nil, fmt.Errorf("[auth discoverOIDC] reading discovery claims: %w", err)
	}

	return &Provider{
		Strategy:      config.StrategyOIDC,
		Endpoint:      p.Endpoint(),
		UserInfoURL:   p.UserInfoEndpoint(),
		EndSessionURL: claims.EndSessionEndpoint,
		SupportsPKCE:  slices.Contains(claims.CodeChallengeMethodsSupported, "S256"),
		verifier:      p.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// idamProvider builds the static IDAM endpoint set. keyCtx must outlive the provider since
// signing keys are fetched lazily with it.
func idamProvider(keyCtx context.Context, webURL, apiURL, issuer, clientID string) *Provider {
	webURL = strings.TrimRight(webURL, "/")
	apiURL = strings.TrimRight(apiURL, "/")
	if issuer == "" {
		issuer = apiURL + "/o"
	}

	keySet := oidc.NewRemoteKeySet(keyCtx, apiURL+"/o/jwks")
	return &Provider{
		Strategy: config.StrategyIdam,
		Endpoint: oauth2.Endpoint{
			AuthURL:   webURL + "/login",
			TokenURL:  apiURL + "/o/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL:   apiURL + "/o/userinfo",
		EndSessionURL: apiURL + "/o/endSession",
		verifier:      oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}
