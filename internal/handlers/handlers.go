// Package handlers serves the JSON API.
package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chepyr/go-todo-tree/internal/auth"
	"github.com/chepyr/go-todo-tree/internal/tasks"
	"github.com/chepyr/go-todo-tree/internal/validation"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	Tasks       *tasks.Service
	Auth        *auth.Service
	RateLimiter *RateLimiter
	WSHub       *WSHub
	Logger      *log.Logger
	// AllowedOrigins lists the cross-origin websocket clients to accept.
	AllowedOrigins []string
}

type errorResponse struct {
	Message string            `json:"message"`
	Errors  validation.Errors `json:"errors,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, errorResponse{Message: message})
}

func sendValidationError(w http.ResponseWriter, errs validation.Errors) {
	sendJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: errs.FirstMessage(), Errors: errs})
}

// sendServiceError maps domain errors onto status codes. Anything it does
// not recognise is logged and reported as a 500.
func (h *Handler) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errs, ok := validation.From(err); ok {
		h.logger().Debug("validation failed", "path", r.URL.Path, "err", err)
		sendValidationError(w, errs)
		return
	}
	switch {
	case errors.Is(err, errBadJSON):
		sendError(w, "Bad JSON", http.StatusBadRequest)
	case errors.Is(err, tasks.ErrNotFound):
		sendError(w, "Task not found", http.StatusNotFound)
	case errors.Is(err, tasks.ErrForbidden):
		h.logger().Info("rejected parent", "path", r.URL.Path)
		sendError(w, "Parent task not found or not authorized", http.StatusForbidden)
	case errors.Is(err, auth.ErrUnauthenticated):
		sendError(w, "Unauthenticated.", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidCredentials):
		sendError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidVerificationLink):
		sendError(w, "Invalid verification link", http.StatusBadRequest)
	default:
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		sendError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

type RateLimiter struct {
	attempts map[string]int
	limit    int
	mutex    sync.Mutex
	window   time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		attempts: make(map[string]int),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	count, exists := rl.attempts[ip]
	if !exists {
		rl.attempts[ip] = 1
		return true
	}
	if count >= rl.limit {
		return false
	}
	rl.attempts[ip]++
	return true
}

// reset the attempts map every window duration until Stop
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mutex.Lock()
			rl.attempts = make(map[string]int)
			rl.mutex.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the reset goroutine. Attempts are no longer forgotten afterwards.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.RateLimiter == nil {
		return true
	}
	ip := clientIP(r)
	if h.RateLimiter.Allow(ip) {
		return true
	}
	h.logger().Info("rate limit exceeded", "ip", ip, "path", r.URL.Path)
	sendError(w, "Too many attempts. Please try again later.", http.StatusTooManyRequests)
	return false
}
