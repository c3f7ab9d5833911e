package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chatdb/chatdb/internal/observability"
)

// ErrForbidden marks an authenticated principal that lacks a required role.
var ErrForbidden = errors.New("forbidden")

type contextKey string

const identityKey contextKey = "chatdb_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Authorize checks the identity carried by ctx against role. A context with no
// identity passes, since handlers only see one when auth is disabled.
// RoleExplorer is also satisfied by RoleQueryRunner.
func Authorize(ctx context.Context, role string) error {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil
	}
	allowed := identity.HasRole(role)
	if role == RoleExplorer {
		allowed = identity.CanExplore()
	}
	if !allowed {
		return fmt.Errorf("%w: principal %q lacks role %q", ErrForbidden, identity.Principal, role)
	}
	return nil
}

// Middleware authenticates the API key and admits principals that may at
// least explore. Execution rights are checked per request with Authorize.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				warn(logger, r, "authentication failed")
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
				return
			}
			if !identity.CanExplore() {
				warn(logger, r, "principal has no explorer role", slog.String("principal", identity.Principal))
				writeAuthError(w, r, http.StatusForbidden, "FORBIDDEN",
					fmt.Sprintf("principal %q needs role %q or %q", identity.Principal, RoleExplorer, RoleQueryRunner))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func warn(logger *slog.Logger, r *http.Request, msg string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	attrs = append(attrs,
		slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		slog.String("path", r.URL.Path),
	)
	logger.LogAttrs(r.Context(), slog.LevelWarn, msg, attrs...)
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
