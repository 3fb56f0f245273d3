package jwtauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/pkg/metricskey"
	"github.com/effective-security/xlog"
)

type contextKey int

const (
	keyIdentity contextKey = iota
)

// WithIdentity returns a new context with Identity value
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, keyIdentity, id)
}

// FromContext returns the Identity of the request, or nil.
func FromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(keyIdentity).(*Identity); ok {
		return v
	}
	return nil
}

// IsPublicPath returns true for the health paths that bypass authentication.
func IsPublicPath(path string) bool {
	switch strings.TrimRight(path, "/") {
	case "", "/ping":
		return true
	}
	return false
}

// Middleware authenticates every request except the health paths,
// and places the Identity on the request context.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		id, err := v.Authenticate(ctx, r.Header.Get("Authorization"))
		if err != nil {
			status, reason, msg := Rejection(err)
			metricskey.StatsAuthRejected.IncrCounter(1, reason)
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "auth_rejected",
				"path", r.URL.Path,
				"reason", reason,
				"err", err.Error(),
			)
			writeError(w, status, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
	})
}

// Rejection maps an Authenticate error to the HTTP status,
// a metric reason and the message returned to the caller.
func Rejection(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, "expired", "Token expired"
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "invalid", "Invalid token"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden", "Token client_id not allowed"
	case errors.Is(err, errEmptyBearer):
		return http.StatusUnauthorized, "missing", "Empty Bearer token"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "missing", "Missing or invalid Authorization header"
	default:
		return http.StatusInternalServerError, "provider", "Authentication error"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
