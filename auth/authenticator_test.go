package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/possession-claims-frontend/auth"
	"github.com/jrsteele09/possession-claims-frontend/auth/authfakes"
	"github.com/jrsteele09/possession-claims-frontend/claimmodel"
	"github.com/jrsteele09/possession-claims-frontend/internal/config"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/jrsteele09/possession-claims-frontend/sessions"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "pcs-frontend"
	testClientSecret = "pcs-secret"
	testRedirectURI  = "http://localhost:8080/oauth2/callback"
	testPostLogout   = "http://localhost:8080/"
)

type testOIDCConfig struct {
	config.OIDC
}

func (c testOIDCConfig) GetRedirectURI() string           { return testRedirectURI }
func (c testOIDCConfig) GetPostLogoutRedirectURI() string { return testPostLogout }

func oidcConfig(idp *authfakes.FakeIdP) testOIDCConfig {
	return testOIDCConfig{OIDC: config.OIDC{
		Strategy:         config.StrategyOIDC,
		Issuer:           idp.URL,
		ClientID:         testClientID,
		ClientSecret:     testClientSecret,
		Scope:            "openid profile roles",
		DiscoveryTimeout: 5 * time.Second,
		TokenCacheTTL:    time.Minute,
	}}
}

func idamConfig(idp *authfakes.FakeIdP) testOIDCConfig {
	c := oidcConfig(idp)
	c.Strategy = config.StrategyIdam
	c.Issuer = ""
	c.IdamWebURL = idp.URL
	c.IdamAPIURL = idp.URL
	return c
}

func newAuthenticator(t *testing.T, cfg config.OIDCConfig) *auth.Authenticator {
	t.Helper()
	a, err := auth.New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func newSession() *sessions.Session {
	return sessions.New("sid-1", time.Now())
}

// login runs BeginLogin and the simulated provider sign-in, returning the callback query.
func login(t *testing.T, a *auth.Authenticator, idp *authfakes.FakeIdP, s *sessions.Session) url.Values {
	t.Helper()
	authURL, err := a.BeginLogin(context.Background(), s)
	require.NoError(t, err)
	return idp.Authorize(t, authURL)
}

func TestNew_RejectsUnknownStrategy(t *testing.T) {
	_, err := auth.New(testOIDCConfig{OIDC: config.OIDC{Strategy: "saml"}})
	require.ErrorIs(t, err, apperrors.ErrUnsupportedStrategy)
}

func TestBeginLogin(t *testing.T) {
	t.Run("pkce provider gets a challenge and no nonce", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		authURL, err := a.BeginLogin(context.Background(), s)
		require.NoError(t, err)

		u, err := url.Parse(authURL)
		require.NoError(t, err)
		require.Equal(t, idp.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)

		q := u.Query()
		pending := s.PendingLogin()
		require.NotEmpty(t, pending.CodeVerifier)
		require.Equal(t, pending.State, q.Get("state"))
		require.Equal(t, "S256", q.Get("code_challenge_method"))
		require.NotEmpty(t, q.Get("code_challenge"))
		require.NotEqual(t, pending.CodeVerifier, q.Get("code_challenge"))
		require.Empty(t, q.Get("nonce"))
		require.Empty(t, pending.Nonce)
		require.Equal(t, testRedirectURI, q.Get("redirect_uri"))
		require.Equal(t, "openid profile roles", q.Get("scope"))
	})

	t.Run("provider without pkce also gets a nonce", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		idp.PKCE = false
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		authURL, err := a.BeginLogin(context.Background(), s)
		require.NoError(t, err)

		u, err := url.Parse(authURL)
		require.NoError(t, err)
		require.NotEmpty(t, s.PendingLogin().Nonce)
		require.Equal(t, s.PendingLogin().Nonce, u.Query().Get("nonce"))
	})

	t.Run("every login generates fresh values", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		_, err := a.BeginLogin(context.Background(), s)
		require.NoError(t, err)
		first := s.PendingLogin()
		_, err = a.BeginLogin(context.Background(), s)
		require.NoError(t, err)
		require.NotEqual(t, first.CodeVerifier, s.PendingLogin().CodeVerifier)
		require.NotEqual(t, first.State, s.PendingLogin().State)
	})
}

func TestHandleCallback(t *testing.T) {
	t.Run("successful pkce login populates the user", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		params := login(t, a, idp, s)
		user, err := a.HandleCallback(context.Background(), s, params)
		require.NoError(t, err)

		require.Equal(t, "user-123", user.Subject)
		require.Equal(t, "claimant@example.com", user.Email)
		require.Equal(t, "Jo Bloggs", user.DisplayName())
		require.Equal(t, "access-initial", user.AccessToken)
		require.Equal(t, "refresh-initial", user.RefreshToken)
		require.NotEmpty(t, user.IDToken)
		require.True(t, user.HasRole("citizen"))
		require.Equal(t, user, s.User())
		require.Equal(t, sessions.PendingLogin{}, s.PendingLogin())
	})

	t.Run("nonce is checked when one was issued", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		idp.PKCE = false
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		user, err := a.HandleCallback(context.Background(), s, login(t, a, idp, s))
		require.NoError(t, err)
		require.Equal(t, "user-123", user.Subject)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		idp.PKCE = false
		idp.TokenNonce = "replayed-nonce"
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		_, err := a.HandleCallback(context.Background(), s, login(t, a, idp, s))
		require.ErrorIs(t, err, apperrors.ErrNonceMismatch)
		require.Nil(t, s.User())
	})

	t.Run("state mismatch consumes the pending login", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		params := login(t, a, idp, s)
		tampered := url.Values{"code": {params.Get("code")}, "state": {"forged"}}

		_, err := a.HandleCallback(context.Background(), s, tampered)
		var cbErr *apperrors.CallbackError
		require.ErrorAs(t, err, &cbErr)
		require.ErrorIs(t, err, apperrors.ErrStateMismatch)
		require.Nil(t, s.User())

		_, err = a.HandleCallback(context.Background(), s, params)
		require.ErrorIs(t, err, apperrors.ErrMissingCodeVerifier)
		require.Nil(t, s.User())
	})

	t.Run("provider error", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()
		_, err := a.BeginLogin(context.Background(), s)
		require.NoError(t, err)

		_, err = a.HandleCallback(context.Background(), s, url.Values{
			"error":             {"access_denied"},
			"error_description": {"user cancelled"},
		})
		require.ErrorIs(t, err, apperrors.ErrProviderCallbackError)
		require.Contains(t, err.Error(), "access_denied")
		require.Equal(t, sessions.PendingLogin{}, s.PendingLogin())
	})

	t.Run("token response without id token", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		idp.OmitIDToken = true
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		_, err := a.HandleCallback(context.Background(), s, login(t, a, idp, s))
		require.ErrorIs(t, err, apperrors.ErrMissingIDToken)
		require.Nil(t, s.User())
	})

	t.Run("userinfo subject must match the id token", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		idp.UserInfoSubject = "someone-else"
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		_, err := a.HandleCallback(context.Background(), s, login(t, a, idp, s))
		require.ErrorIs(t, err, apperrors.ErrSubjectMismatch)
		require.Nil(t, s.User())
	})

	t.Run("wrong verifier is refused by the provider", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		a := newAuthenticator(t, oidcConfig(idp))
		s := newSession()

		params := login(t, a, idp, s)
		pending := s.PendingLogin()
		pending.CodeVerifier = "not-the-verifier"
		s.BeginLogin(pending)

		_, err := a.HandleCallback(context.Background(), s, params)
		var cbErr *apperrors.CallbackError
		require.ErrorAs(t, err, &cbErr)
		require.Equal(t, "exchange", cbErr.Op)
	})
}

func TestIdamStrategy(t *testing.T) {
	idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
	idp.Issuer = idp.URL + "/o"
	a := newAuthenticator(t, idamConfig(idp))
	s := newSession()

	authURL, err := a.BeginLogin(context.Background(), s)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authURL, idp.URL+"/login?"))
	require.NotEmpty(t, s.PendingLogin().Nonce)

	user, err := a.HandleCallback(context.Background(), s, idp.Authorize(t, authURL))
	require.NoError(t, err)
	require.Equal(t, "user-123", user.Subject)

	logoutURL, err := a.LogoutURL(context.Background(), user.IDToken)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(logoutURL, idp.URL+"/o/endSession?"))
}

func TestLazyDiscovery(t *testing.T) {
	idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
	idp.SetDiscoveryDown(true)
	a := newAuthenticator(t, oidcConfig(idp))

	require.ErrorIs(t, a.Init(context.Background()), apperrors.ErrProviderUnavailable)
	require.False(t, a.Ready())

	_, err := a.BeginLogin(context.Background(), newSession())
	var authErr *apperrors.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, apperrors.ErrProviderUnavailable)

	idp.SetDiscoveryDown(false)
	_, err = a.BeginLogin(context.Background(), newSession())
	require.NoError(t, err)
	require.True(t, a.Ready())
}

func TestProvider_HangingIssuer(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(issuer.Close)
	t.Cleanup(func() { close(release) })

	a := newAuthenticator(t, testOIDCConfig{OIDC: config.OIDC{
		Strategy:         config.StrategyOIDC,
		Issuer:           issuer.URL,
		ClientID:         testClientID,
		ClientSecret:     testClientSecret,
		DiscoveryTimeout: 200 * time.Millisecond,
		TokenCacheTTL:    time.Minute,
	}})

	t.Run("concurrent callers share one attempt", func(t *testing.T) {
		requests.Store(0)
		errs := make([]error, 5)
		var wg sync.WaitGroup
		start := time.Now()
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = a.Provider(context.Background())
			}()
		}
		wg.Wait()

		require.Less(t, time.Since(start), time.Second)
		for _, err := range errs {
			require.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
		}
		require.EqualValues(t, 1, requests.Load())
		require.False(t, a.Ready())
	})

	t.Run("caller gives up when its context ends", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := a.Provider(ctx)
		require.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRefresh(t *testing.T) {
	idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
	a := newAuthenticator(t, oidcConfig(idp))

	user := &claimmodel.User{
		Subject:      "user-123",
		AccessToken:  "access-expired",
		RefreshToken: "refresh-initial",
		Expiry:       time.Now().Add(-time.Minute),
	}

	refreshed, err := a.Refresh(context.Background(), user)
	require.NoError(t, err)
	require.Equal(t, "access-refreshed-1", refreshed.AccessToken)
	require.Equal(t, "refresh-rotated-1", refreshed.RefreshToken)
	require.False(t, refreshed.AccessTokenExpired(time.Now()))
	require.Equal(t, "access-expired", user.AccessToken, "input user must not be mutated")

	t.Run("same refresh token is redeemed once", func(t *testing.T) {
		again, err := a.Refresh(context.Background(), user)
		require.NoError(t, err)
		require.Equal(t, "access-refreshed-1", again.AccessToken)
		require.Equal(t, 1, idp.RefreshCount())
	})

	t.Run("no refresh token", func(t *testing.T) {
		_, err := a.Refresh(context.Background(), &claimmodel.User{AccessToken: "a"})
		require.ErrorIs(t, err, apperrors.ErrMissingRefreshToken)
	})

	t.Run("rejected refresh token", func(t *testing.T) {
		_, err := a.Refresh(context.Background(), &claimmodel.User{RefreshToken: "revoked"})
		require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	})
}

func TestLogoutURL(t *testing.T) {
	t.Run("end session endpoint", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		a := newAuthenticator(t, oidcConfig(idp))

		logoutURL, err := a.LogoutURL(context.Background(), "id-token-value")
		require.NoError(t, err)

		u, err := url.Parse(logoutURL)
		require.NoError(t, err)
		require.Equal(t, "/logout", u.Path)
		require.Equal(t, "id-token-value", u.Query().Get("id_token_hint"))
		require.Equal(t, testPostLogout, u.Query().Get("post_logout_redirect_uri"))
	})

	t.Run("no end session endpoint", func(t *testing.T) {
		idp := authfakes.NewFakeIdP(t, testClientID, testClientSecret)
		idp.EndSession = false
		a := newAuthenticator(t, oidcConfig(idp))

		logoutURL, err := a.LogoutURL(context.Background(), "id-token-value")
		require.NoError(t, err)
		require.Equal(t, testPostLogout, logoutURL)
	})
}
