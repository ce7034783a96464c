package auth

import (
	"context"
	"net/http"
	"strings"
)

type claimsKey struct{}

const bearerPrefix = "Bearer "

// WithClaims returns a new context carrying decoded token claims.
func WithClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by Tokens.Middleware, or nil.
func ClaimsFromContext(ctx context.Context) map[string]any {
	c, _ := ctx.Value(claimsKey{}).(map[string]any)
	return c
}

// SubjectFromContext returns the sub claim, or "".
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ClaimsFromContext(ctx)["sub"].(string)
	return sub
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// The prefix is case-sensitive.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return header[len(bearerPrefix):], true
}
