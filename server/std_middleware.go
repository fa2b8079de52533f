package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/jrsteele09/possession-claims-frontend/s2s"
	"github.com/rs/zerolog/log"
)

type authMode int

const (
	// authModeHTML redirects anonymous users to the login page.
	authModeHTML authMode = iota
	// authModeAPI answers anonymous users with a JSON 401.
	authModeAPI
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler) // Call the middleware function
	}
	return chainedHandler
}

// HTMLMiddleWare is the stack for server-rendered pages. The 401 safety net sits inside the
// session middleware so the cleared user is saved with the redirect.
func (s *Server) HTMLMiddleWare(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chainedMiddleWare := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.FrameSecurityMiddleware,
		s.SessionMiddleware,
		s.LeaseMiddleware,
		s.UnauthorizedMiddleware,
	}
	chainedMiddleWare = append(chainedMiddleWare, mw...)
	return chainedMiddleWare
}

func (s *Server) APIMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
	}
}

// DocumentMiddleware is the stack for the JSON upload endpoints.
func (s *Server) DocumentMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.SessionMiddleware,
		s.LeaseMiddleware,
		s.ProviderMiddleware,
		s.RequireAuth(authModeAPI),
	}
}

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.metrics.HTTPRequestTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()

		if !s.isDev() || isProbe(r.URL.Path) {
			return
		}
		status := statusColour(rec.status) + strconv.Itoa(rec.status) + ResetColor
		log.Debug().Msg(fmt.Sprintf("[%-19s] %s %s", colourMethod(r.Method), r.URL.Path, status))
	}
}

func (s *Server) FrameSecurityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Prevent embedding on other sites
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next(w, r)
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().Str("stack", string(debug.Stack())).Msgf("recovered from panic: %v", rec)
				s.handleError(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}

// LeaseMiddleware fetches the S2S lease for the request's outbound calls. A failed lease is
// logged and the request carries on without one.
func (s *Server) LeaseMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.leases == nil {
			next(w, r)
			return
		}
		token, err := s.leases.Token(r.Context())
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("s2s lease unavailable, continuing without service token")
			next(w, r)
			return
		}
		next(w, r.WithContext(s2s.WithToken(r.Context(), token)))
	}
}

// ProviderMiddleware retries identity provider discovery when it failed at startup.
func (s *Server) ProviderMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Ready() {
			if err := s.auth.Init(r.Context()); err != nil {
				s.handleError(w, r, err)
				return
			}
			log.Info().Msg("identity provider discovered")
		}
		next(w, r)
	}
}

// RequireAuth lets authenticated users through, refreshing an expired access token first.
func (s *Server) RequireAuth(mode authMode) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sess := currentSession(r)
			user := sess.User()

			if user != nil && user.AccessTokenExpired(s.nowTime()) {
				refreshed, err := s.auth.Refresh(r.Context(), user)
				if err != nil {
					log.Info().Err(err).Msg("access token refresh failed, signing user out")
					s.metrics.LoginOutcomes.WithLabelValues("refresh", "error").Inc()
					user = nil
				} else {
					s.metrics.LoginOutcomes.WithLabelValues("refresh", "ok").Inc()
					user = refreshed
				}
				sess.SetUser(user)
			}

			if user == nil {
				if mode == authModeAPI {
					writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authenticated"})
					return
				}
				if r.Method == http.MethodGet {
					sess.SetReturnTo(r.URL.RequestURI())
				}
				http.Redirect(w, r, RouteLogin, http.StatusFound)
				return
			}
			next(w, r)
		}
	}
}

// CacheMiddleware sets cache headers for static assets
func (s *Server) CacheMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isOtherStaticAsset(r.URL.Path) {
			w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
		}
		next(w, r)
	}
}

// Helper function to check if path is a static asset (CSS, JS, fonts)
func isOtherStaticAsset(path string) bool {
	staticExtensions := []string{".css", ".js", ".woff", ".woff2", ".ttf", ".svg", ".png", ".ico"}
	for _, ext := range staticExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// isProbe matches the browser and scanner noise that is not worth logging.
func isProbe(path string) bool {
	return path == "/favicon.ico" || strings.HasPrefix(path, "/.well-known/")
}
