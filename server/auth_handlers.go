package server

import (
	"net/http"

	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/rs/zerolog/log"
)

// LoginHandler starts the authorization code flow. An optional returnTo query parameter names
// the local page to land on afterwards.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := currentSession(r)
		if returnTo := r.URL.Query().Get("returnTo"); returnTo != "" {
			sess.SetReturnTo(safeReturnTo(returnTo))
		}

		authURL, err := s.auth.BeginLogin(r.Context(), sess)
		if err != nil {
			s.metrics.LoginOutcomes.WithLabelValues("login", "error").Inc()
			s.handleError(w, r, err)
			return
		}
		s.metrics.LoginOutcomes.WithLabelValues("login", "ok").Inc()
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := currentSession(r)
		user, err := s.auth.HandleCallback(r.Context(), sess, r.URL.Query())
		if err != nil {
			s.metrics.LoginOutcomes.WithLabelValues("callback", "error").Inc()
			s.handleError(w, r, err)
			return
		}
		s.metrics.LoginOutcomes.WithLabelValues("callback", "ok").Inc()
		log.Info().Str("sub", user.Subject).Msg("user signed in")

		// The pre-login id must not carry the signed-in user.
		if err := s.sessions.Regenerate(r.Context(), sess); err != nil {
			log.Warn().Err(err).Msg("failed to delete pre-login session")
		}

		http.Redirect(w, r, safeReturnTo(sess.TakeReturnTo()), http.StatusFound)
	}
}

// LogoutHandler ends the local session and hands the browser to the provider's end-session
// endpoint. Failures on either side are logged and the redirect still happens.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var idTokenHint string
		if user := currentSession(r).User(); user != nil {
			idTokenHint = user.IDToken
		}

		target, err := s.auth.LogoutURL(r.Context(), idTokenHint)
		if err != nil {
			log.Warn().Err(err).Msg("end-session url unavailable")
		}
		if target == "" {
			target = RouteIndex
		}

		s.destroySession(w, r)
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// ActiveHandler is polled by the timeout dialog. It extends a live session but never creates one.
func (s *Server) ActiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Existing(r)
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"active": false, "authenticated": false})
			return
		}
		if err == nil {
			err = s.sessions.Extend(r.Context(), w, sess)
		}
		if err != nil {
			log.Err(err).Msg("failed to extend session")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"active": false, "authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"active": true, "authenticated": sess.User() != nil})
	}
}
