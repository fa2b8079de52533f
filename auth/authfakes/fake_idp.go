// Package authfakes provides an in-process identity provider for tests.
package authfakes

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "fake-idp-key"

type authRequest struct {
	nonce     string
	challenge string
}

// FakeIdP serves both the discovery-based endpoints (/authorize, /token, ...) and the static
// IDAM layout (/login, /o/token, ...) from one httptest server.
type FakeIdP struct {
	*httptest.Server

	// Issuer defaults to the server URL. Set it to URL+"/o" for the IDAM layout.
	Issuer       string
	ClientID     string
	ClientSecret string
	// PKCE advertises S256 in the discovery document.
	PKCE bool
	// EndSession advertises the /logout end-session endpoint.
	EndSession bool

	Subject         string
	UserInfoSubject string
	Email           string
	GivenName       string
	FamilyName      string
	Roles           []string
	AccessTokenTTL  time.Duration
	// TokenNonce overrides the nonce placed in ID tokens when set.
	TokenNonce string
	// OmitIDToken drops the id_token from token responses.
	OmitIDToken bool

	key           *rsa.PrivateKey
	discoveryDown atomic.Bool

	mu             sync.Mutex
	codes          map[string]authRequest
	issued         int
	refreshCount   int
	LastAuthParams url.Values
}

func NewFakeIdP(t testing.TB, clientID, clientSecret string) *FakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating idp key: %v", err)
	}

	idp := &FakeIdP{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		PKCE:           true,
		EndSession:     true,
		Subject:        "user-123",
		Email:          "claimant@example.com",
		GivenName:      "Jo",
		FamilyName:     "Bloggs",
		Roles:          []string{"citizen"},
		AccessTokenTTL: time.Hour,
		key:            key,
		codes:          make(map[string]authRequest),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", idp.discovery)
	mux.HandleFunc("GET /authorize", idp.authorize)
	mux.HandleFunc("GET /login", idp.authorize)
	mux.HandleFunc("POST /token", idp.token)
	mux.HandleFunc("POST /o/token", idp.token)
	mux.HandleFunc("GET /userinfo", idp.userInfo)
	mux.HandleFunc("GET /o/userinfo", idp.userInfo)
	mux.HandleFunc("GET /jwks", idp.jwks)
	mux.HandleFunc("GET /o/jwks", idp.jwks)

	idp.Server = httptest.NewServer(mux)
	idp.Issuer = idp.URL
	t.Cleanup(idp.Close)
	return idp
}

// RefreshCount is the number of refresh_token grants served.
func (idp *FakeIdP) RefreshCount() int {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.refreshCount
}

// Authorize simulates the user signing in: it follows the authorization URL and returns the
// callback query the provider would redirect back with.
func (idp *FakeIdP) Authorize(t testing.TB, authURL string) url.Values {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(authURL)
	if err != nil {
		t.Fatalf("following authorization url: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("authorization returned %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parsing callback location: %v", err)
	}
	return loc.Query()
}

// SetDiscoveryDown makes the discovery document return 503 until reset.
func (idp *FakeIdP) SetDiscoveryDown(down bool) {
	idp.discoveryDown.Store(down)
}

func (idp *FakeIdP) discovery(w http.ResponseWriter, _ *http.Request) {
	if idp.discoveryDown.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	doc := map[string]any{
		"issuer":                                idp.Issuer,
		"authorization_endpoint":                idp.URL + "/authorize",
		"token_endpoint":                        idp.URL + "/token",
		"userinfo_endpoint":                     idp.URL + "/userinfo",
		"jwks_uri":                              idp.URL + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
	}
	if idp.PKCE {
		doc["code_challenge_methods_supported"] = []string{"S256"}
	}
	if idp.EndSession {
		doc["end_session_endpoint"] = idp.URL + "/logout"
	}
	writeJSON(w, http.StatusOK, doc)
}

func (idp *FakeIdP) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != idp.ClientID || q.Get("response_type") != "code" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.String() == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	idp.mu.Lock()
	idp.issued++
	code := fmt.Sprintf("code-%d", idp.issued)
	idp.codes[code] = authRequest{nonce: q.Get("nonce"), challenge: q.Get("code_challenge")}
	idp.LastAuthParams = q
	idp.mu.Unlock()

	back := redirect.Query()
	back.Set("code", code)
	back.Set("state", q.Get("state"))
	redirect.RawQuery = back.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (idp *FakeIdP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request")
		return
	}
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID, clientSecret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID != idp.ClientID || clientSecret != idp.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		idp.mu.Lock()
		req, found := idp.codes[r.PostForm.Get("code")]
		delete(idp.codes, r.PostForm.Get("code"))
		idp.mu.Unlock()
		if !found {
			tokenError(w, "invalid_grant")
			return
		}
		if req.challenge != "" && s256(r.PostForm.Get("code_verifier")) != req.challenge {
			tokenError(w, "invalid_grant")
			return
		}
		nonce := req.nonce
		if idp.TokenNonce != "" {
			nonce = idp.TokenNonce
		}
		idp.writeTokens(w, "access-initial", "refresh-initial", nonce)

	case "refresh_token":
		if !strings.HasPrefix(r.PostForm.Get("refresh_token"), "refresh-") {
			tokenError(w, "invalid_grant")
			return
		}
		idp.mu.Lock()
		idp.refreshCount++
		n := idp.refreshCount
		idp.mu.Unlock()
		idp.writeTokens(w, fmt.Sprintf("access-refreshed-%d", n), fmt.Sprintf("refresh-rotated-%d", n), "")

	default:
		tokenError(w, "unsupported_grant_type")
	}
}

func (idp *FakeIdP) writeTokens(w http.ResponseWriter, accessToken, refreshToken, nonce string) {
	body := map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    int(idp.AccessTokenTTL.Seconds()),
		"refresh_token": refreshToken,
	}
	if !idp.OmitIDToken {
		idToken, err := idp.SignIDToken(nonce)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		body["id_token"] = idToken
	}
	writeJSON(w, http.StatusOK, body)
}

// SignIDToken issues an RS256 ID token for the configured subject.
func (idp *FakeIdP) SignIDToken(nonce string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": idp.Issuer,
		"sub": idp.Subject,
		"aud": idp.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(idp.key)
}

func (idp *FakeIdP) userInfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
		http.Error(w, "invalid_token", http.StatusUnauthorized)
		return
	}
	subject := idp.Subject
	if idp.UserInfoSubject != "" {
		subject = idp.UserInfoSubject
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":         subject,
		"uid":         subject,
		"email":       idp.Email,
		"given_name":  idp.GivenName,
		"family_name": idp.FamilyName,
		"roles":       idp.Roles,
	})
}

func (idp *FakeIdP) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := idp.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": keyID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func tokenError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
