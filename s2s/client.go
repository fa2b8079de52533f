package s2s

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// expirySkew keeps a cached lease from being handed out in its final seconds.
const expirySkew = 30 * time.Second

// leaseTimeout bounds a shared lease request. It is detached from the caller that started it.
const leaseTimeout = 10 * time.Second

// Observer is notified of every lease lookup; source is "cache" or "lease".
type Observer func(source, outcome string)

type Options struct {
	LeaseURL     string
	Microservice string
	Secret       string
	TTL          time.Duration
	Store        LeaseStore
	HTTPClient   *http.Client
	Observer     Observer
}

// Client obtains S2S lease tokens, reusing a cached lease until it expires.
type Client struct {
	httpClient   *http.Client
	leaseURL     string
	microservice string
	secret       string
	ttl          time.Duration
	store        LeaseStore
	observe      Observer
	group        singleflight.Group
	now          func() time.Time
}

func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Observer == nil {
		opts.Observer = func(string, string) {}
	}
	return &Client{
		httpClient:   opts.HTTPClient,
		leaseURL:     strings.TrimRight(opts.LeaseURL, "/"),
		microservice: opts.Microservice,
		secret:       opts.Secret,
		ttl:          opts.TTL,
		store:        opts.Store,
		observe:      opts.Observer,
		now:          time.Now,
	}
}

// CacheKey is the single well-known key the lease for this microservice lives under.
func (c *Client) CacheKey() string {
	return "s2s:lease:" + c.microservice
}

// Token returns a valid lease. Concurrent misses inside this process share one lease request,
// which keeps running if the caller that started it goes away. Other instances may still
// lease in parallel and the last write wins.
func (c *Client) Token(ctx context.Context) (string, error) {
	token, err := c.store.Get(ctx, c.CacheKey())
	if err == nil {
		c.observe("cache", "hit")
		return token, nil
	}
	if !apperrors.Is(err, apperrors.ErrLeaseNotFound) {
		log.Warn().Err(err).Msg("s2s lease cache unavailable, requesting a new lease")
	}

	ch := c.group.DoChan(c.CacheKey(), func() (any, error) {
		leaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseTimeout)
		defer cancel()
		return c.refresh(leaseCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			c.observe("lease", "error")
			return "", res.Err
		}
		c.observe("lease", "ok")
		return res.Val.(string), nil
	case <-ctx.Done():
		c.observe("lease", "error")
		return "", fmt.Errorf("[s2s Token] %w", ctx.Err())
	}
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	token, err := c.lease(ctx)
	if err != nil {
		return "", err
	}
	ttl := c.leaseTTL(token)
	if ttl <= 0 {
		return token, nil
	}
	if err := c.store.Set(ctx, c.CacheKey(), token, ttl); err != nil {
		log.Warn().Err(err).Msg("failed to cache s2s lease")
	}
	return token, nil
}

// OneTimePassword generates the TOTP for now from the shared base32 secret.
func (c *Client) OneTimePassword(now time.Time) (string, error) {
	code, err := totp.GenerateCode(c.secret, now)
	if err != nil {
		return "", fmt.Errorf("[s2s OneTimePassword] %w", err)
	}
	return code, nil
}

type leaseRequest struct {
	Microservice    string `json:"microservice"`
	OneTimePassword string `json:"oneTimePassword"`
}

func (c *Client) lease(ctx context.Context) (string, error) {
	otp, err := c.OneTimePassword(c.now())
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(leaseRequest{Microservice: c.microservice, OneTimePassword: otp})
	if err != nil {
		return "", fmt.Errorf("[s2s lease] encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.leaseURL+"/lease", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("[s2s lease] building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("[s2s lease] %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("[s2s lease] reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("[s2s lease] %w: %w", apperrors.ErrLeaseRejected,
			&apperrors.UpstreamError{Service: "s2s", StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(payload))})
	}

	token := strings.TrimSpace(string(payload))
	if token == "" {
		return "", fmt.Errorf("[s2s lease] %w: empty token", apperrors.ErrLeaseRejected)
	}
	return token, nil
}

// leaseTTL is the configured lifetime, shortened when the token carries an earlier exp claim.
func (c *Client) leaseTTL(token string) time.Duration {
	ttl := c.ttl
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ttl
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ttl
	}
	if untilExp := exp.Sub(c.now()) - expirySkew; untilExp < ttl {
		return untilExp
	}
	return ttl
}
