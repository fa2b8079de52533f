package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/possession-claims-frontend/auth"
	"github.com/jrsteele09/possession-claims-frontend/documents"
	"github.com/jrsteele09/possession-claims-frontend/internal/config"
	"github.com/jrsteele09/possession-claims-frontend/internal/logging"
	"github.com/jrsteele09/possession-claims-frontend/internal/metrics"
	"github.com/jrsteele09/possession-claims-frontend/journey"
	"github.com/jrsteele09/possession-claims-frontend/s2s"
	"github.com/jrsteele09/possession-claims-frontend/server"
	"github.com/jrsteele09/possession-claims-frontend/sessions"
	"github.com/jrsteele09/possession-claims-frontend/tokencache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("stack", string(debug.Stack())).Msgf("Recovered from panic: %v", r)
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		// Configuration does not fix itself on retry.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(c.GetEnv())
	displayAppname(c.GetAppName())

	handler, cleanup, err := wire(c)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(server) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

// wire builds the server and its collaborators. The returned cleanup releases caches and
// connections.
func wire(c config.Config) (http.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	m := metrics.New()

	var redisClient *redis.Client
	if c.GetRedisURL() != "" {
		opts, err := redis.ParseURL(c.GetRedisURL())
		if err != nil {
			return nil, cleanup, fmt.Errorf("[wire] parsing REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var store sessions.Store
	if redisClient != nil {
		store = sessions.NewRedisRepo(redisClient, c.GetRedisKeyPrefix())
		log.Info().Msg("sessions stored in redis")
	} else {
		memory := sessions.NewInMemoryRepo()
		closers = append(closers, memory.Close)
		store = memory
		log.Warn().Msg("REDIS_URL not set, sessions are held in memory")
	}
	manager := sessions.NewManager(store, sessions.ManagerOptions{
		CookieName: c.GetSessionCookieName(),
		TTL:        c.GetSessionTTL(),
		Secure:     c.GetCookieSecure(),
	})

	authenticator, err := auth.New(c, auth.WithHTTPClient(&http.Client{Timeout: c.GetDownstreamTimeout()}))
	if err != nil {
		return nil, cleanup, fmt.Errorf("[wire] %w", err)
	}
	closers = append(closers, authenticator.Close)

	ctx, cancel := context.WithTimeout(context.Background(), c.GetDiscoveryTimeout())
	if err := authenticator.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("identity provider discovery failed, retrying on first login")
	}
	cancel()

	var leases server.LeaseSource
	if c.GetS2SURL() != "" {
		local := tokencache.New[string](c.GetS2STTL())
		closers = append(closers, local.Close)

		var leaseStore s2s.LeaseStore = s2s.NewMemoryLeaseStore(local)
		if redisClient != nil {
			leaseStore = s2s.NewTieredLeaseStore(s2s.NewMemoryLeaseStore(local), s2s.NewRedisLeaseStore(redisClient, c.GetRedisKeyPrefix()))
		}
		leases = s2s.NewClient(s2s.Options{
			LeaseURL:     c.GetS2SURL(),
			Microservice: c.GetS2SMicroservice(),
			Secret:       c.GetS2SSecret(),
			TTL:          c.GetS2STTL(),
			Store:        leaseStore,
			HTTPClient:   &http.Client{Timeout: c.GetS2STimeout()},
			Observer: func(source, outcome string) {
				m.LeaseRequests.WithLabelValues(source, outcome).Inc()
			},
		})
	} else {
		log.Warn().Msg("S2S_URL not set, downstream calls carry no service token")
	}

	wizard, err := journey.NewWizard(journey.ClaimSteps())
	if err != nil {
		return nil, cleanup, fmt.Errorf("[wire] %w", err)
	}

	downstream := &http.Client{Timeout: c.GetDownstreamTimeout(), Transport: &s2s.Transport{}}
	srv, err := server.New(c, server.Deps{
		Sessions: manager,
		Auth:     authenticator,
		Leases:   leases,
		Wizard:   wizard,
		CDAM: documents.NewCDAMClient(documents.CDAMOptions{
			BaseURL:        c.GetCDAMURL(),
			CaseTypeID:     c.GetCaseTypeID(),
			JurisdictionID: c.GetJurisdictionID(),
			Classification: c.GetClassification(),
			HTTPClient:     downstream,
		}),
		Cases: documents.NewCaseClient(documents.CaseOptions{
			BaseURL:    c.GetCaseDataURL(),
			CaseTypeID: c.GetCaseTypeID(),
			HTTPClient: downstream,
		}),
		Metrics: m,
	})
	if err != nil {
		return nil, cleanup, err
	}
	return srv, cleanup, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
