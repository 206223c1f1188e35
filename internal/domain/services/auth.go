package services

import "context"

// Principal is the authenticated caller of a request
type Principal struct {
	UserID string
	Email  string
	Owner  bool // may manage the template catalog
}

// OwnerAuthorizer gates the owner panel operations
type OwnerAuthorizer interface {
	// RequireOwner returns domain.ErrForbidden unless the principal in ctx is an owner
	RequireOwner(ctx context.Context) error
}

type principalKey struct{}

// WithPrincipal stores the caller in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored in ctx
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
