package tokencache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/possession-claims-frontend/tokencache"
	"github.com/stretchr/testify/require"
)

type tokenResponse struct {
	AccessToken string
}

func TestKey(t *testing.T) {
	require.Equal(t, tokencache.Key("client", "secret"), tokencache.Key("client", "secret"))
	require.NotEqual(t, tokencache.Key("client", "secret"), tokencache.Key("clients", "ecret"))
	require.Len(t, tokencache.Key("anything"), 64)
	require.NotContains(t, tokencache.Key("refresh-token-value"), "refresh")
}

func TestCache_GetSet(t *testing.T) {
	c := tokencache.New[*tokenResponse](time.Minute)
	t.Cleanup(c.Close)

	_, ok := c.Get("k")
	require.False(t, ok)

	c.Set("k", &tokenResponse{AccessToken: "a"}, 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "a", v.AccessToken)

	c.Set("k", &tokenResponse{AccessToken: "b"}, 0)
	v, _ = c.Get("k")
	require.Equal(t, "b", v.AccessToken)

	c.Delete("k")
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestCache_NeverServesExpiredEntries(t *testing.T) {
	c := tokencache.New[string](time.Minute)
	t.Cleanup(c.Close)

	c.Set("short", "value", 20*time.Millisecond)
	_, ok := c.Get("short")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get("short")
	require.False(t, ok)
}

func TestCache_GetOrFetch(t *testing.T) {
	c := tokencache.New[string](time.Minute)
	t.Cleanup(c.Close)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (string, time.Duration, error) {
		calls++
		return "token", 0, nil
	}

	for range 3 {
		v, err := c.GetOrFetch(ctx, "lease", fetch)
		require.NoError(t, err)
		require.Equal(t, "token", v)
	}
	require.Equal(t, 1, calls)

	t.Run("errors are not cached", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := c.GetOrFetch(ctx, "failing", func(context.Context) (string, time.Duration, error) {
			return "", 0, boom
		})
		require.ErrorIs(t, err, boom)
		_, ok := c.Get("failing")
		require.False(t, ok)
	})
}

func TestCache_GetOrFetchSharesConcurrentMisses(t *testing.T) {
	c := tokencache.New[*tokenResponse](time.Minute)
	t.Cleanup(c.Close)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (*tokenResponse, time.Duration, error) {
		calls.Add(1)
		<-release
		return &tokenResponse{AccessToken: "shared"}, 0, nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrFetch(context.Background(), "refresh", fetch)
			if err == nil {
				results[i] = v.AccessToken
			}
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		require.Equal(t, "shared", r)
	}
}

func TestCache_GetOrFetchOutlivesCancelledCaller(t *testing.T) {
	c := tokencache.New[*tokenResponse](time.Minute)
	t.Cleanup(c.Close)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	fetch := func(ctx context.Context) (*tokenResponse, time.Duration, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		return &tokenResponse{AccessToken: "shared"}, 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(ctx, "refresh", fetch)
		firstErr <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		v, err := c.GetOrFetch(context.Background(), "refresh", fetch)
		if err != nil {
			second <- err.Error()
			return
		}
		second <- v.AccessToken
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)
	require.Equal(t, "shared", <-second)

	v, ok := c.Get("refresh")
	require.True(t, ok)
	require.Equal(t, "shared", v.AccessToken)
}
