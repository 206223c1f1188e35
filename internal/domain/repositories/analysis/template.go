package analysis

import (
	"context"

	"figmant/internal/domain/models/analysis"
)

// TemplateRepository stores owner-managed prompt templates.
// Built-in templates are not stored here.
type TemplateRepository interface {
	List(ctx context.Context) ([]analysis.Template, error)

	// Get returns domain.ErrNotFound if the template does not exist
	Get(ctx context.Context, id string) (*analysis.Template, error)

	// Create returns a *domain.ConflictError if the title is already taken
	Create(ctx context.Context, tmpl *analysis.Template) error
	Update(ctx context.Context, tmpl *analysis.Template) error
	Delete(ctx context.Context, id string) error
}
