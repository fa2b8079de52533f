package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/possession-claims-frontend/auth"
	"github.com/jrsteele09/possession-claims-frontend/documents"
	"github.com/jrsteele09/possession-claims-frontend/internal/config"
	"github.com/jrsteele09/possession-claims-frontend/internal/metrics"
	"github.com/jrsteele09/possession-claims-frontend/journey"
	"github.com/jrsteele09/possession-claims-frontend/sessions"
	"github.com/rs/zerolog/log"
)

// LeaseSource hands out the S2S token attached to outbound calls.
type LeaseSource interface {
	Token(ctx context.Context) (string, error)
}

// Deps are the collaborators the server is wired with. Leases may be nil when no S2S lease
// endpoint is configured.
type Deps struct {
	Sessions *sessions.Manager
	Auth     *auth.Authenticator
	Leases   LeaseSource
	Wizard   *journey.Wizard
	CDAM     *documents.CDAMClient
	Cases    *documents.CaseClient
	Metrics  *metrics.Metrics
}

type Server struct {
	env            string // Environment (e.g., "DEV", "PROD")
	appName        string
	mux            *http.ServeMux
	routes         []string
	config         config.Config
	sessions       *sessions.Manager
	auth           *auth.Authenticator
	leases         LeaseSource
	wizard         *journey.Wizard
	cdam           *documents.CDAMClient
	cases          *documents.CaseClient
	metrics        *metrics.Metrics
	maxUploadBytes int64
	nowTime        func() time.Time
	errorPage      *template.Template
}

func New(config config.Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Auth == nil || deps.Wizard == nil {
		return nil, fmt.Errorf("[Server New] sessions, auth and wizard are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	s := &Server{
		env:            config.GetEnv(),
		appName:        config.GetAppName(),
		mux:            http.NewServeMux(),
		config:         config,
		sessions:       deps.Sessions,
		auth:           deps.Auth,
		leases:         deps.Leases,
		wizard:         deps.Wizard,
		cdam:           deps.CDAM,
		cases:          deps.Cases,
		metrics:        deps.Metrics,
		maxUploadBytes: config.GetMaxUploadBytes(),
		nowTime:        time.Now,
	}

	if err := s.initRoutes(); err != nil {
		return nil, fmt.Errorf("[Server New] failed to register routes: %w", err)
	}
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) isDev() bool {
	return s.env == "DEV"
}

func (s *Server) logRoutes() {
	if !s.isDev() {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msg(fmt.Sprintf("[%-19s] %s", colourMethod(method), path))
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
