package api

import (
	"context"
	"net/http"
	"strings"

	"shooter-arena/internal/game"
	"shooter-arena/internal/identity"
)

// contextKey keeps request-scoped values collision-free
type contextKey string

const (
	agentContextKey contextKey = "agent"
	tokenContextKey contextKey = "token"
)

// TokenVerifier resolves an API token to an agent identity.
// *identity.Verifier satisfies this; tests substitute their own.
type TokenVerifier interface {
	Verify(ctx context.Context, apiKey string) (identity.Agent, bool)
}

// BearerToken extracts the API token from the Authorization header.
// Both "Bearer <token>" and a bare token are accepted; agent SDKs in
// the wild send either.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

// RequireToken returns middleware that authenticates every request
// against the verifier and stashes the agent identity in the request
// context for the handlers downstream.
func RequireToken(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeError(w, game.ErrUnauthorized, "missing Authorization header", 0)
				return
			}

			agent, ok := verifier.Verify(r.Context(), token)
			if !ok {
				writeError(w, game.ErrInvalidAPIKey, "API key rejected", 0)
				return
			}

			ctx := context.WithValue(r.Context(), agentContextKey, agent)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentFromContext returns the verified identity stored by RequireToken.
func AgentFromContext(ctx context.Context) (identity.Agent, bool) {
	agent, ok := ctx.Value(agentContextKey).(identity.Agent)
	return agent, ok
}

// TokenFromContext returns the raw API token stored by RequireToken.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
