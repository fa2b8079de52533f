package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/possession-claims-frontend/sessions"
	"github.com/rs/zerolog/log"
)

type handleKey struct{}

// sessionHandle tracks the request's session so a handler can destroy it and stop the
// middleware from saving it again.
type sessionHandle struct {
	session   *sessions.Session
	destroyed bool
}

func currentSession(r *http.Request) *sessions.Session {
	if sess, ok := sessions.FromContext(r.Context()); ok {
		return sess
	}
	return sessions.New("", time.Now())
}

// SessionMiddleware loads the session before the handler runs and saves it just before the
// response headers go out, so the cookie is always part of the response.
func (s *Server) SessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Load(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		handle := &sessionHandle{session: sess}
		ctx := sessions.NewContext(r.Context(), sess)
		ctx = context.WithValue(ctx, handleKey{}, handle)
		r = r.WithContext(ctx)

		sw := &sessionWriter{ResponseWriter: w, commit: func() {
			if handle.destroyed {
				return
			}
			if err := s.sessions.Save(ctx, w, sess); err != nil {
				log.Err(err).Str("path", r.URL.Path).Msg("failed to save session")
			}
		}}
		next(sw, r)
		sw.commitOnce()
	}
}

// destroySession removes the session record and expires the cookie. Errors are logged only.
func (s *Server) destroySession(w http.ResponseWriter, r *http.Request) {
	handle, ok := r.Context().Value(handleKey{}).(*sessionHandle)
	if !ok {
		return
	}
	handle.destroyed = true
	if err := s.sessions.Destroy(r.Context(), w, handle.session); err != nil {
		log.Err(err).Msg("failed to destroy session")
	}
}

type sessionWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *sessionWriter) commitOnce() {
	if w.committed {
		return
	}
	w.committed = true
	w.commit()
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commitOnce()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commitOnce()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// UnauthorizedMiddleware turns any 401 written by an HTML handler into a fresh login: the
// session user is cleared and the browser is sent to /login, returning here afterwards.
func (s *Server) UnauthorizedMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uw := &unauthorizedWriter{ResponseWriter: w, onUnauthorized: func() {
			s.redirectToLogin(w, r)
		}}
		next(uw, r)
	}
}

// redirectToLogin clears the user and redirects to the login page, remembering where a GET
// request was headed.
func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	sess.SetUser(nil)
	if r.Method == http.MethodGet {
		sess.SetReturnTo(r.URL.RequestURI())
	}
	h := w.Header()
	h.Del("Content-Type")
	h.Del("Content-Length")
	h.Set("Location", RouteLogin)
	w.WriteHeader(http.StatusFound)
}

type unauthorizedWriter struct {
	http.ResponseWriter
	onUnauthorized func()
	wroteHeader    bool
	intercepted    bool
}

func (w *unauthorizedWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if code == http.StatusUnauthorized {
		w.intercepted = true
		w.onUnauthorized()
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *unauthorizedWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.intercepted {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *unauthorizedWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// safeReturnTo only allows local absolute paths, defaulting to the home page.
func safeReturnTo(path string) string {
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.HasPrefix(path, "/\\") {
		return RouteIndex
	}
	return path
}
