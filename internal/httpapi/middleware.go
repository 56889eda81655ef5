// ABOUTME: Bearer-token middleware guarding protected routes
// ABOUTME: Validates access tokens and stashes their claims in the request context

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/token"
)

// claimsContextKey is the key type for storing token claims in context.Context.
type claimsContextKey struct{}

// ClaimsFromContext retrieves the access-token claims from the context,
// returning nil if the request did not pass through RequireAuth.
func ClaimsFromContext(ctx context.Context) token.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(token.Claims)
	return claims
}

// RequireAuth wraps a handler with Bearer-token validation. The token's
// claims are attached to the request context for the handler to read back
// with ClaimsFromContext.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken, errMsg := extractBearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			s.sendJSONError(w, http.StatusUnauthorized, errMsg)
			return
		}

		claims, err := s.service.Authorize(accessToken)
		if err != nil {
			s.sendServiceError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	accessToken := strings.TrimPrefix(authHeader, "Bearer ")
	if accessToken == "" {
		return "", "empty token"
	}
	return accessToken, ""
}
