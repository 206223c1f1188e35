package auth

import (
	"context"
	"errors"
	"testing"

	"figmant/internal/domain"
	"figmant/internal/domain/models"
	"figmant/internal/domain/services"
)

func TestIsOwner(t *testing.T) {
	policy := NewOwnerPolicy([]string{" Boss@Figmant.io ", ""})

	tests := []struct {
		name   string
		claims *models.SupabaseClaims
		want   bool
	}{
		{name: "listed email", claims: &models.SupabaseClaims{Email: "boss@figmant.io"}, want: true},
		{name: "owner role", claims: &models.SupabaseClaims{Email: "x@y.z", AppMetadata: map[string]interface{}{"role": "owner"}}, want: true},
		{name: "other role", claims: &models.SupabaseClaims{Email: "x@y.z", AppMetadata: map[string]interface{}{"role": "member"}}},
		{name: "no claims"},
		{name: "empty email", claims: &models.SupabaseClaims{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.IsOwner(tt.claims); got != tt.want {
				t.Errorf("IsOwner() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireOwner(t *testing.T) {
	policy := NewOwnerPolicy(nil)

	if err := policy.RequireOwner(context.Background()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("no principal: err = %v", err)
	}

	member := services.WithPrincipal(context.Background(), services.Principal{UserID: "u1"})
	if err := policy.RequireOwner(member); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member: err = %v", err)
	}

	owner := services.WithPrincipal(context.Background(), services.Principal{UserID: "u1", Owner: true})
	if err := policy.RequireOwner(owner); err != nil {
		t.Errorf("owner: err = %v", err)
	}
}
