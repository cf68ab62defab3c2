package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserKey contextKey = "user"

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context under UserKey.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := BearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "Not authorized, no token", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Not authorized, token failed", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserKey, claims)))
		})
	}
}

// ClaimsFrom returns the claims stored by Middleware.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserKey).(*Claims)
	return claims, ok
}
