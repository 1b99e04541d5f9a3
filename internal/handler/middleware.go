package handler

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/prn-tf/workroom/internal/config"
	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/token"
)

type contextKey int

const userContextKey contextKey = iota

// UserFromContext returns the authenticated user injected by the auth
// middleware, or nil outside an authenticated route.
func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userContextKey).(*domain.User)
	return user
}

// UserLoader resolves a username to a user record. Satisfied by
// service.UserService.
type UserLoader interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// AuthMiddleware gates routes behind bearer tokens. Every failure mode
// (missing header, bad token, unknown user, disabled account) produces
// the same 401 body.
type AuthMiddleware struct {
	tokens *token.Manager
	users  UserLoader
	logger zerolog.Logger
}

// NewAuthMiddleware creates the bearer-token access gate.
func NewAuthMiddleware(tokens *token.Manager, users UserLoader, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		users:  users,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Handle wraps a handler with bearer authentication.
func (m *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeUnauthorized(w)
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		username, err := m.tokens.Verify(tokenStr)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		user, err := m.users.GetByUsername(r.Context(), username)
		if err != nil {
			m.logger.Debug().Str("username", username).Msg("token subject could not be resolved")
			writeUnauthorized(w)
			return
		}
		if !user.CanAuthenticate() {
			m.logger.Debug().Str("username", username).Msg("disabled user rejected at access gate")
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger emits one structured log line per request.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote", clientIP(r)).
				Msg("request")
		})
	}
}

// RateLimit applies a per-client token bucket keyed by IP. Idle
// clients are evicted after a few minutes so the map stays bounded.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	type client struct {
		limiter *rate.Limiter
		seen    time.Time
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	const idleTTL = 5 * time.Minute
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			now := time.Now()
			mu.Lock()
			for ip, c := range clients {
				if now.Sub(c.seen) > idleTTL {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if ip == "" {
				ip = "unknown"
			}

			mu.Lock()
			c, ok := clients[ip]
			if !ok {
				c = &client{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)}
				clients[ip] = c
			}
			c.seen = time.Now()
			allowed := c.limiter.Allow()
			mu.Unlock()

			if !allowed {
				writeJSON(w, http.StatusTooManyRequests, errorBody{
					Error: errorDetail{Kind: "rate_limited", Detail: "rate limit exceeded"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the caller address, honoring the first entry of
// X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
