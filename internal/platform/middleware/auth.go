package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTClaims is the subset of token claims the middleware hands to
// handlers.
type JWTClaims struct {
	Subject string
}

// JWTValidator validates bearer tokens for the admin API.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

type contextKeySubject struct{}

// GetSubject retrieves the authenticated subject from the context.
func GetSubject(ctx context.Context) string {
	subject, ok := ctx.Value(contextKeySubject{}).(string)
	if !ok {
		return ""
	}
	return subject
}

// RequireAuth rejects requests without a valid Bearer token and puts the
// token subject on the request context.
func RequireAuth(validator JWTValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				log.WarnContext(ctx, "unauthorized access, missing token",
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				log.WarnContext(ctx, "unauthorized access, invalid token",
					"error", err,
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, contextKeySubject{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
