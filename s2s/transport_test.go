package s2s_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/possession-claims-frontend/s2s"
	"github.com/stretchr/testify/require"
)

func TestTransport_SetsHeaderPerRequest(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get(s2s.HeaderName))
	}))
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: &s2s.Transport{}}

	for _, ctx := range []context.Context{
		s2s.WithToken(context.Background(), "token-a"),
		context.Background(),
		s2s.WithToken(context.Background(), "token-b"),
	} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Empty(t, req.Header.Get(s2s.HeaderName), "caller's request must not be mutated")
	}

	require.Equal(t, []string{"Bearer token-a", "", "Bearer token-b"}, seen)
}

func TestTokenFromContext(t *testing.T) {
	_, ok := s2s.TokenFromContext(context.Background())
	require.False(t, ok)

	_, ok = s2s.TokenFromContext(s2s.WithToken(context.Background(), ""))
	require.False(t, ok)

	token, ok := s2s.TokenFromContext(s2s.WithToken(context.Background(), "t"))
	require.True(t, ok)
	require.Equal(t, "t", token)
}
