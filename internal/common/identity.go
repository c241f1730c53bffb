package common

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Identity is the already-verified caller identity forwarded by the gateway.
// Authentication itself happens upstream; this service only trusts the
// headers the gateway injects after verifying the session.
type Identity struct {
	UserID uuid.UUID
	Level  string
	IsNew  bool
}

type identityKey struct{}

// WithIdentity stores the caller identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the caller identity from the context if present.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey{}).(Identity)
	return v, ok
}

// IdentityMiddleware parses the gateway identity headers into the request
// context. Requests without a parseable user id pass through anonymously;
// handlers that need identity reject those themselves.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		id := Identity{
			UserID: userID,
			Level:  strings.TrimSpace(r.Header.Get("X-User-Level")),
			IsNew:  parseFlag(r.Header.Get("X-User-New")),
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireIdentity rejects requests that reached a protected handler without a
// gateway identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing caller identity", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "yes":
		return true
	default:
		return false
	}
}
