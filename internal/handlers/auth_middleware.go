package handlers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chepyr/go-todo-tree/internal/auth"
)

/*
Resolve the bearer token to a user through the auth service
and put that user into the request context
*/
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			sendError(w, "Unauthenticated.", http.StatusUnauthorized)
			return
		}
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			sendError(w, "Unauthenticated.", http.StatusUnauthorized)
			return
		}

		user, err := h.Auth.Authenticate(r.Context(), strings.TrimSpace(tokenString))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				h.sendServiceError(w, r, err)
				return
			}
			sendError(w, "Unauthenticated.", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// Hijack is needed by the websocket upgrader.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rec.status = http.StatusSwitchingProtocols
	return http.NewResponseController(rec.ResponseWriter).Hijack()
}

// LogRequests logs one line per request at debug level.
func (h *Handler) LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger().Debug("request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
