package server

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/rs/zerolog/log"
)

// handleError is the single place handler and middleware errors are turned into responses.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.Is(err, apperrors.ErrUpstreamUnauthorized) {
		log.Info().Err(err).Str("path", r.URL.Path).Msg("upstream rejected credentials, signing user out")
		s.redirectToLogin(w, r)
		return
	}

	title := "Sorry, there is a problem with the service"
	var authErr *apperrors.AuthenticationError
	var callbackErr *apperrors.CallbackError
	switch {
	case apperrors.As(err, &authErr):
		log.Err(err).Str("op", authErr.Op).Msg("login could not be started")
		title = "Sorry, we could not sign you in"
	case apperrors.As(err, &callbackErr):
		log.Err(err).Str("op", callbackErr.Op).Msg("login callback failed")
		title = "Sorry, we could not sign you in"
	default:
		log.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}

	data := s.newPage(r, title)
	data.Status = http.StatusInternalServerError
	if s.isDev() {
		data.Detail = err.Error()
	}
	s.render(w, s.errorPage, http.StatusInternalServerError, data)
}

// NotFoundHandler renders the themed 404 page for every unmatched route.
func (s *Server) NotFoundHandler() (http.HandlerFunc, error) {
	tmpl, err := ParseTemplate("not_found.html")
	if err != nil {
		return nil, fmt.Errorf("[Server NotFoundHandler] %w", err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !isProbe(r.URL.Path) {
			log.Info().Str("method", r.Method).Str("path", r.URL.Path).Msg("page not found")
		}
		data := s.newPage(r, "Page not found")
		data.Status = http.StatusNotFound
		s.render(w, tmpl, http.StatusNotFound, data)
	}, nil
}

func (s *Server) IndexHandler() (http.HandlerFunc, error) {
	tmpl, err := ParseTemplate("index.html")
	if err != nil {
		return nil, fmt.Errorf("[Server IndexHandler] %w", err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, tmpl, http.StatusOK, s.newPage(r, s.appName))
	}, nil
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "UP",
			"provider": s.auth.Ready(),
		})
	}
}
