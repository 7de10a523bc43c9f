package agent

import (
	"context"
	"net/http"
)

// APIKeyHeader is the header carrying an agent's raw API key, matching
// the teacher's X-Service-Token / X-Service-ID header convention.
const APIKeyHeader = "X-Aegix-Api-Key"

type contextKey string

const identityKey contextKey = "agent_identity"

// WithIdentity returns a new context carrying identity, mirroring
// serviceauth.WithServiceID.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext extracts the {agent_id, owner} pair attached by
// Middleware, mirroring serviceauth.GetServiceID.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey).(Identity)
	return v, ok
}

// Middleware authenticates every request via APIKeyHeader, rejecting
// unknown keys and paused agents with 401, and attaches the resolved
// identity to the request context for downstream handlers.
func Middleware(registry *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rawKey := req.Header.Get(APIKeyHeader)
			if rawKey == "" {
				http.Error(w, "missing api key", http.StatusUnauthorized)
				return
			}

			identity, err := registry.Authenticate(req.Context(), rawKey)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithIdentity(req.Context(), *identity)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
