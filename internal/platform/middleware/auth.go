package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating operator tokens.
// Who may operate the admin console is decided upstream; this layer only
// authenticates the presented token.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	OperatorID   string
	ConferenceID string
}

type contextKeyOperatorID struct{}
type contextKeyConferenceID struct{}

// Context keys exported for use in handlers and tests.
var (
	ContextKeyOperatorID   = contextKeyOperatorID{}
	ContextKeyConferenceID = contextKeyConferenceID{}
)

// GetOperatorID retrieves the authenticated operator ID from the context.
func GetOperatorID(ctx context.Context) string {
	id, ok := ctx.Value(ContextKeyOperatorID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetConferenceID retrieves the token's conference scope from the context.
func GetConferenceID(ctx context.Context) string {
	id, ok := ctx.Value(ContextKeyConferenceID).(string)
	if !ok {
		return ""
	}
	return id
}

// RequireAuth rejects requests without a valid bearer token and stores
// the operator identity in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyOperatorID, claims.OperatorID)
			ctx = context.WithValue(ctx, ContextKeyConferenceID, claims.ConferenceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
