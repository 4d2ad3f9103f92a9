package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"manuscript-review/internal/logger"
	"manuscript-review/internal/models"
)

type actorKey struct{}

// ActorResolver turns a bearer token into the acting identity
type ActorResolver interface {
	ResolveActor(token string) (models.Actor, error)
}

// AuthMiddleware authenticates requests against the identity directory
type AuthMiddleware struct {
	resolver ActorResolver
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(resolver ActorResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Authenticate resolves the bearer token and stores the actor in the request context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			respondWithError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		actor, err := m.resolver.ResolveActor(strings.TrimSpace(token))
		if err != nil {
			logger.FromContext(r.Context()).Debug("Rejected bearer token", "error", err)
			respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor stores the actor in ctx
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom retrieves the authenticated actor from ctx
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
