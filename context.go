package authgate

import (
	"context"

	"github.com/authgate/authgate/jwt"
)

// Identity is the result of a successful authentication: the verified
// token claims plus the name of the scheme that produced them. It is
// attached to the request context as an immutable value and lives for
// exactly one request.
type Identity struct {
	Claims *jwt.Claims
	Scheme string
}

type identityContextKey struct{}
type skipAuthContextKey struct{}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the authenticated identity attached by a
// scheme middleware, or ok=false when the request is anonymous.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// WithSkipAuth marks the request as exempt from optional authentication.
// Routes that serve both anonymous and authenticated traffic use this to
// bypass credential extraction entirely.
func WithSkipAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthContextKey{}, true)
}

func skipAuth(ctx context.Context) bool {
	skip, _ := ctx.Value(skipAuthContextKey{}).(bool)
	return skip
}
