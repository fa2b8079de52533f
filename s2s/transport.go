package s2s

import (
	"context"
	"net/http"
)

// HeaderName is the outbound header carrying the lease.
const HeaderName = "ServiceAuthorization"

type tokenKey struct{}

// WithToken attaches the lease to ctx for the outbound calls made while serving a request.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// Transport sets the ServiceAuthorization header from the request context, so each outbound
// call carries the lease of the request it was made for rather than a shared default.
type Transport struct {
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	token, ok := TokenFromContext(req.Context())
	if !ok {
		return base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(HeaderName, "Bearer "+token)
	return base.RoundTrip(clone)
}
