package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/possession-claims-frontend/claimmodel"
	"github.com/jrsteele09/possession-claims-frontend/internal/config"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/jrsteele09/possession-claims-frontend/sessions"
	"github.com/jrsteele09/possession-claims-frontend/tokencache"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Authenticator runs the authorization code flow against the configured identity provider.
// Endpoint discovery happens on first use and is retried until it succeeds.
type Authenticator struct {
	strategy              string
	issuer                string
	clientID              string
	clientSecret          string
	redirectURL           string
	postLogoutRedirectURL string
	scopes                []string
	idamWebURL            string
	idamAPIURL            string
	discoveryTimeout      time.Duration
	tokenCacheTTL         time.Duration

	httpClient   *http.Client
	refreshCache *tokencache.Cache[*oauth2.Token]
	ownsCache    bool
	nowTime      func() time.Time

	mu        sync.Mutex
	provider  *Provider
	discovery singleflight.Group
}

// AuthenticatorOption defines a function type to modify the Authenticator instance.
type AuthenticatorOption func(*Authenticator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.nowTime = nowFunc
	}
}

// WithHTTPClient sets the client used for discovery, token and userinfo calls.
func WithHTTPClient(client *http.Client) AuthenticatorOption {
	return func(a *Authenticator) {
		a.httpClient = client
	}
}

// WithRefreshCache shares a refresh token cache instead of creating one.
func WithRefreshCache(cache *tokencache.Cache[*oauth2.Token]) AuthenticatorOption {
	return func(a *Authenticator) {
		a.refreshCache = cache
	}
}

// New validates the strategy and returns an Authenticator. No network calls are made; call
// Init to discover the provider eagerly.
func New(cfg config.OIDCConfig, opts ...AuthenticatorOption) (*Authenticator, error) {
	switch cfg.GetOIDCStrategy() {
	case config.StrategyOIDC, config.StrategyIdam:
	default:
		return nil, fmt.Errorf("[Authenticator New] %w: %q", apperrors.ErrUnsupportedStrategy, cfg.GetOIDCStrategy())
	}

	a := &Authenticator{
		strategy:              cfg.GetOIDCStrategy(),
		issuer:                cfg.GetIssuer(),
		clientID:              cfg.GetClientID(),
		clientSecret:          cfg.GetClientSecret(),
		redirectURL:           cfg.GetRedirectURI(),
		postLogoutRedirectURL: cfg.GetPostLogoutRedirectURI(),
		scopes:                cfg.GetScopes(),
		idamWebURL:            cfg.GetIdamWebURL(),
		idamAPIURL:            cfg.GetIdamAPIURL(),
		discoveryTimeout:      cfg.GetDiscoveryTimeout(),
		tokenCacheTTL:         cfg.GetTokenCacheTTL(),
		httpClient:            &http.Client{Timeout: 10 * time.Second},
		nowTime:               time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.discoveryTimeout <= 0 {
		a.discoveryTimeout = 10 * time.Second
	}
	if a.tokenCacheTTL <= 0 {
		a.tokenCacheTTL = 5 * time.Minute
	}
	if a.refreshCache == nil {
		a.refreshCache = tokencache.New[*oauth2.Token](a.tokenCacheTTL)
		a.ownsCache = true
	}
	return a, nil
}

// Close releases the refresh cache when the Authenticator created it.
func (a *Authenticator) Close() {
	if a.ownsCache {
		a.refreshCache.Close()
	}
}

// Init attempts discovery. A failure is not fatal: Provider retries on the next request.
func (a *Authenticator) Init(ctx context.Context) error {
	_, err := a.Provider(ctx)
	return err
}

// Ready reports whether the provider has been resolved.
func (a *Authenticator) Ready() bool {
	return a.resolved() != nil
}

// Provider returns the resolved provider, discovering it if needed. Concurrent callers share
// one discovery attempt, which is bounded by the discovery timeout rather than any one
// caller's context.
func (a *Authenticator) Provider(ctx context.Context) (*Provider, error) {
	if p := a.resolved(); p != nil {
		return p, nil
	}

	ch := a.discovery.DoChan("provider", func() (any, error) {
		if p := a.resolved(); p != nil {
			return p, nil
		}
		p, err := a.discover(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.provider = p
		a.mu.Unlock()
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Provider), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("[Authenticator Provider] %w: %w", apperrors.ErrProviderUnavailable, ctx.Err())
	}
}

func (a *Authenticator) resolved() *Provider {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.provider
}

func (a *Authenticator) discover(ctx context.Context) (*Provider, error) {
	if a.strategy == config.StrategyIdam {
		return idamProvider(a.clientContext(context.Background()), a.idamWebURL, a.idamAPIURL, a.issuer, a.clientID), nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.discoveryTimeout)
	defer cancel()
	return discoverOIDC(a.clientContext(ctx), a.issuer, a.clientID)
}

func (a *Authenticator) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, a.httpClient)
}

func (a *Authenticator) oauth2Config(p *Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint:     p.Endpoint,
		RedirectURL:  a.redirectURL,
		Scopes:       a.scopes,
	}
}

// BeginLogin stores a fresh code verifier and state (plus a nonce when the provider lacks PKCE)
// in the session and returns the authorization URL to redirect to.
func (a *Authenticator) BeginLogin(ctx context.Context, state sessions.AuthState) (string, error) {
	p, err := a.Provider(ctx)
	if err != nil {
		return "", &apperrors.AuthenticationError{Op: "discovery", Err: err}
	}

	verifier, err := generateRandomString(codeVerifierLength)
	if err != nil {
		return "", &apperrors.AuthenticationError{Op: "code verifier", Err: err}
	}
	csrfState, err := generateRandomString(stateLength)
	if err != nil {
		return "", &apperrors.AuthenticationError{Op: "state", Err: err}
	}

	pending := sessions.PendingLogin{CodeVerifier: verifier, State: csrfState}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if !p.SupportsPKCE {
		nonce, err := generateRandomString(nonceLength)
		if err != nil {
			return "", &apperrors.AuthenticationError{Op: "nonce", Err: err}
		}
		pending.Nonce = nonce
		opts = append(opts, oidc.Nonce(nonce))
	}

	state.BeginLogin(pending)
	return a.oauth2Config(p).AuthCodeURL(csrfState, opts...), nil
}

// HandleCallback completes the login. The pending verifier, nonce and state are consumed
// whatever the outcome, and the session user is only set once every check has passed.
func (a *Authenticator) HandleCallback(ctx context.Context, state sessions.AuthState, params url.Values) (*claimmodel.User, error) {
	pending := state.TakePendingLogin()

	if errCode := params.Get("error"); errCode != "" {
		return nil, &apperrors.CallbackError{
			Op:  "authorize",
			Err: fmt.Errorf("%w: %s %s", apperrors.ErrProviderCallbackError, errCode, params.Get("error_description")),
		}
	}
	if pending.CodeVerifier == "" {
		return nil, &apperrors.CallbackError{Op: "state", Err: apperrors.ErrMissingCodeVerifier}
	}
	if params.Get("state") == "" || params.Get("state") != pending.State {
		return nil, &apperrors.CallbackError{Op: "state", Err: apperrors.ErrStateMismatch}
	}
	code := params.Get("code")
	if code == "" {
		return nil, &apperrors.CallbackError{Op: "exchange", Err: fmt.Errorf("%w: missing code", apperrors.ErrInvalidRequest)}
	}

	p, err := a.Provider(ctx)
	if err != nil {
		return nil, &apperrors.CallbackError{Op: "discovery", Err: err}
	}

	ctx = a.clientContext(ctx)
	token, err := a.oauth2Config(p).Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", pending.CodeVerifier))
	if err != nil {
		return nil, &apperrors.CallbackError{Op: "exchange", Err: err}
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, &apperrors.CallbackError{Op: "exchange", Err: apperrors.ErrMissingIDToken}
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &apperrors.CallbackError{Op: "verify", Err: err}
	}
	if pending.Nonce != "" && idToken.Nonce != pending.Nonce {
		return nil, &apperrors.CallbackError{Op: "verify", Err: apperrors.ErrNonceMismatch}
	}

	info, err := fetchUserInfo(ctx, p.UserInfoURL, token)
	if err != nil {
		return nil, &apperrors.CallbackError{Op: "userinfo", Err: err}
	}
	if info.Subject != idToken.Subject {
		return nil, &apperrors.CallbackError{Op: "userinfo", Err: apperrors.ErrSubjectMismatch}
	}

	user := &claimmodel.User{
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Subject:      idToken.Subject,
		UID:          info.UID,
		Email:        info.Email,
		GivenName:    info.GivenName,
		FamilyName:   info.FamilyName,
		Roles:        info.Roles,
	}
	state.SetUser(user)
	return user, nil
}

// Refresh redeems the user's refresh token. Results are cached per refresh token so parallel
// requests from the same session redeem it once.
func (a *Authenticator) Refresh(ctx context.Context, user *claimmodel.User) (*claimmodel.User, error) {
	if user == nil || user.RefreshToken == "" {
		return nil, apperrors.ErrMissingRefreshToken
	}
	p, err := a.Provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("[Authenticator Refresh] %w", err)
	}

	key := tokencache.Key("refresh", a.clientID, user.RefreshToken)
	token, err := a.refreshCache.GetOrFetch(ctx, key, func(ctx context.Context) (*oauth2.Token, time.Duration, error) {
		expired := &oauth2.Token{RefreshToken: user.RefreshToken, Expiry: a.nowTime().Add(-time.Minute)}
		t, err := a.oauth2Config(p).TokenSource(a.clientContext(ctx), expired).Token()
		if err != nil {
			return nil, 0, err
		}
		return t, a.cacheTTL(t), nil
	})
	if err != nil {
		return nil, fmt.Errorf("[Authenticator Refresh] %w: %w", apperrors.ErrNotAuthenticated, err)
	}

	refreshed := *user
	refreshed.AccessToken = token.AccessToken
	refreshed.Expiry = token.Expiry
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		refreshed.IDToken = idToken
	}
	return &refreshed, nil
}

// cacheTTL never lets a cached token response outlive its access token.
func (a *Authenticator) cacheTTL(t *oauth2.Token) time.Duration {
	if t.Expiry.IsZero() {
		return a.tokenCacheTTL
	}
	remaining := t.Expiry.Sub(a.nowTime())
	if remaining <= 0 {
		return time.Millisecond
	}
	return min(remaining, a.tokenCacheTTL)
}

// LogoutURL builds the provider's end-session URL. Without an end-session endpoint the user is
// sent straight to the post-logout page.
func (a *Authenticator) LogoutURL(ctx context.Context, idTokenHint string) (string, error) {
	p, err := a.Provider(ctx)
	if err != nil {
		return a.postLogoutRedirectURL, fmt.Errorf("[Authenticator LogoutURL] %w", err)
	}
	if p.EndSessionURL == "" {
		return a.postLogoutRedirectURL, nil
	}

	u, err := url.Parse(p.EndSessionURL)
	if err != nil {
		return a.postLogoutRedirectURL, fmt.Errorf("[Authenticator LogoutURL] %w", err)
	}
	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	q.Set("post_logout_redirect_uri", a.postLogoutRedirectURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
