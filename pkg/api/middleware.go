package api

import (
	"net/http"
	"time"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireBasicAuth rejects requests without valid basic auth credentials
// of a configured user.
func (s *server) requireBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="speedcenter"`)
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		if !s.checkPassword(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="speedcenter"`)
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"invalid credentials"})

			return
		}

		next.ServeHTTP(w, r)
	})
}
