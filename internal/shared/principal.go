package shared

import (
	"context"
	"strings"
)

// Principal describes the authenticated actor as supplied by the identity
// layer in front of this service. Authentication itself happens upstream;
// the service only consumes the result.
type Principal struct {
	UserID string
	Role   string
	Name   string
}

// IsZero reports whether no principal was established for the request.
func (p Principal) IsZero() bool {
	return strings.TrimSpace(p.UserID) == ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalContextKey{}).(Principal)
	return p
}
