package templates

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	"figmant/internal/domain/services"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/repository/memory"
	"figmant/internal/service/auth"
)

func newService(t *testing.T) *Service {
	t.Helper()
	builtins, err := LoadBuiltins()
	if err != nil {
		t.Fatalf("LoadBuiltins failed: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(memory.NewTemplateStore(), builtins, auth.NewOwnerPolicy(nil), logger).(*Service)
}

func ownerCtx() context.Context {
	return services.WithPrincipal(context.Background(), services.Principal{UserID: "owner-1", Owner: true})
}

func validRequest() *analysisSvc.TemplateRequest {
	return &analysisSvc.TemplateRequest{
		Title:    "Onboarding Review",
		Category: "Usability",
		Prompt:   "Review the <b>onboarding</b> flow",
		UserID:   "owner-1",
		ContextualFields: []analysis.ContextualField{
			{ID: "steps", Label: "Number of steps", Type: analysis.FieldTypeNumber},
		},
	}
}

func TestLoadBuiltins(t *testing.T) {
	builtins, err := LoadBuiltins()
	if err != nil {
		t.Fatal(err)
	}
	if len(builtins) == 0 {
		t.Fatal("no built-in templates")
	}
	for _, b := range builtins {
		if !b.BuiltIn || b.Title == "" || b.Prompt == "" {
			t.Errorf("incomplete built-in: %+v", b)
		}
	}

	var seo *analysis.Template
	for i := range builtins {
		if builtins[i].Title == "SEO Review" {
			seo = &builtins[i]
		}
	}
	if seo == nil {
		t.Fatal("SEO Review built-in missing")
	}
}

func TestListAndGet(t *testing.T) {
	svc := newService(t)
	ctx := ownerCtx()

	created, err := svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	all, _ := svc.List(ctx, "")
	if len(all) != len(svc.builtins)+1 {
		t.Errorf("List = %d templates, want %d", len(all), len(svc.builtins)+1)
	}
	if !all[0].BuiltIn || all[len(all)-1].ID != created.ID {
		t.Error("built-ins should come before stored templates")
	}

	usability, _ := svc.List(ctx, "USABILITY")
	for _, tmpl := range usability {
		if tmpl.Category != "usability" {
			t.Errorf("category filter leaked %s", tmpl.Category)
		}
	}

	got, err := svc.Get(ctx, "builtin-seo-review")
	if err != nil || got.Title != "SEO Review" {
		t.Errorf("Get built-in = %+v, %v", got, err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get missing: err = %v", err)
	}
}

func TestCreateSanitises(t *testing.T) {
	svc := newService(t)

	tmpl, err := svc.Create(ownerCtx(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Prompt != "Review the onboarding flow" {
		t.Errorf("prompt = %q", tmpl.Prompt)
	}
	if tmpl.Category != "usability" || tmpl.CreatedBy != "owner-1" {
		t.Errorf("unexpected template: %+v", tmpl)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *analysisSvc.TemplateRequest)
		wantErr error
	}{
		{name: "missing title", mutate: func(r *analysisSvc.TemplateRequest) { r.Title = "" }, wantErr: domain.ErrValidation},
		{name: "missing prompt", mutate: func(r *analysisSvc.TemplateRequest) { r.Prompt = "" }, wantErr: domain.ErrValidation},
		{name: "unknown field type", mutate: func(r *analysisSvc.TemplateRequest) {
			r.ContextualFields[0].Type = "slider"
		}, wantErr: domain.ErrValidation},
		{name: "duplicate field id", mutate: func(r *analysisSvc.TemplateRequest) {
			r.ContextualFields = append(r.ContextualFields, r.ContextualFields[0])
		}, wantErr: domain.ErrValidation},
		{name: "select without options", mutate: func(r *analysisSvc.TemplateRequest) {
			r.ContextualFields[0].Type = analysis.FieldTypeSelect
		}, wantErr: domain.ErrValidation},
		{name: "built-in title", mutate: func(r *analysisSvc.TemplateRequest) { r.Title = "seo review" }, wantErr: domain.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t)
			req := validRequest()
			tt.mutate(req)
			if _, err := svc.Create(ownerCtx(), req); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOwnerOnlyWrites(t *testing.T) {
	svc := newService(t)
	member := services.WithPrincipal(context.Background(), services.Principal{UserID: "u1"})

	if _, err := svc.Create(member, validRequest()); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member create: err = %v", err)
	}

	created, err := svc.Create(ownerCtx(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(member, created.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member delete: err = %v", err)
	}
}

func TestBuiltinsReadOnly(t *testing.T) {
	svc := newService(t)
	ctx := ownerCtx()

	if _, err := svc.Update(ctx, "builtin-ux-review", validRequest()); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("update built-in: err = %v", err)
	}
	if err := svc.Delete(ctx, "builtin-ux-review"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("delete built-in: err = %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	svc := newService(t)
	ctx := ownerCtx()

	created, err := svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatal(err)
	}

	req := validRequest()
	req.Title = "Onboarding Deep Dive"
	updated, err := svc.Update(ctx, created.ID, req)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.ID != created.ID || updated.Title != "Onboarding Deep Dive" || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("unexpected update: %+v", updated)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleted template still present: %v", err)
	}
}
