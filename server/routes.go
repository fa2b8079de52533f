package server

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() error {
	errorPage, err := ParseTemplate("error.html")
	if err != nil {
		return err
	}
	s.errorPage = errorPage

	index, err := s.IndexHandler()
	if err != nil {
		return err
	}
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(index, s.HTMLMiddleWare()...))

	// AUTH
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.HTMLMiddleWare(s.ProviderMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleWare(s.ProviderMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteActive, ChainMiddleware(s.ActiveHandler(), s.APIMiddleware()...))

	// JOURNEY
	for _, step := range s.wizard.Steps() {
		get, post, err := s.StepHandlers(step)
		if err != nil {
			return err
		}
		var gate []func(http.HandlerFunc) http.HandlerFunc
		if step.RequiresAuth {
			gate = append(gate, s.ProviderMiddleware, s.RequireAuth(authModeHTML))
		}
		s.RegisterRouteHandler("GET "+step.Path, ChainMiddleware(get, s.HTMLMiddleWare(gate...)...))
		s.RegisterRouteHandler("POST "+step.Path, ChainMiddleware(post, s.HTMLMiddleWare(gate...)...))
	}

	// DOCUMENTS
	uploadPage, err := s.UploadPageHandler()
	if err != nil {
		return err
	}
	s.RegisterRouteHandler("GET "+RouteUploadPage, ChainMiddleware(uploadPage, s.HTMLMiddleWare(s.ProviderMiddleware, s.RequireAuth(authModeHTML))...))
	s.RegisterRouteHandler("POST "+RouteUploadDocument, ChainMiddleware(s.UploadDocumentHandler(), s.DocumentMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSubmitDocument, ChainMiddleware(s.SubmitDocumentHandler(), s.DocumentMiddleware()...))

	// OPERATIONAL
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	s.RegisterRouteHandler("GET "+RouteAssets, ChainMiddleware(s.serveFileHandler(), s.CacheMiddleware))

	notFound, err := s.NotFoundHandler()
	if err != nil {
		return err
	}
	s.RegisterRouteHandler("/", ChainMiddleware(notFound, s.HTMLMiddleWare()...))
	return nil
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := StreamFile(w, r.PathValue("file"))
		switch {
		case err == nil:
		case apperrors.Is(err, apperrors.ErrNotFound):
			logError(r.Method, r.URL.Path, err.Error())
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
		default:
			logError(r.Method, r.URL.Path, err.Error())
			http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		}
	}
}

func logError(method, path, error string) {
	log.Warn().Msg(fmt.Sprintf("[%-19s] %s %s", colourMethod(method), path, Red+error+ResetColor))
}
