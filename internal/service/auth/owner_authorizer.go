package auth

import (
	"context"
	"fmt"
	"strings"

	"figmant/internal/domain"
	"figmant/internal/domain/models"
	"figmant/internal/domain/services"
)

// OwnerPolicy decides who may use the owner panel. A user is an owner when
// their app_metadata role is "owner" or their email is on the configured list.
type OwnerPolicy struct {
	emails map[string]struct{}
}

// NewOwnerPolicy creates a policy from a list of owner emails
func NewOwnerPolicy(emails []string) *OwnerPolicy {
	p := &OwnerPolicy{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			p.emails[e] = struct{}{}
		}
	}
	return p
}

// IsOwner reports whether the token holder is an owner
func (p *OwnerPolicy) IsOwner(claims *models.SupabaseClaims) bool {
	if claims == nil {
		return false
	}
	if role, _ := claims.AppMetadata["role"].(string); role == models.OwnerRole {
		return true
	}
	_, listed := p.emails[strings.ToLower(claims.Email)]
	return listed
}

// RequireOwner checks the principal stored in ctx
func (p *OwnerPolicy) RequireOwner(ctx context.Context) error {
	principal, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	if !principal.Owner {
		return fmt.Errorf("owner access required: %w", domain.ErrForbidden)
	}
	return nil
}
