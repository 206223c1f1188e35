// Package templates serves the prompt template catalog: built-in templates
// embedded in the binary plus templates managed by owners in the database.
package templates

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/microcosm-cc/bluemonday"

	"figmant/internal/config"
	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	analysisRepo "figmant/internal/domain/repositories/analysis"
	"figmant/internal/domain/services"
	analysisSvc "figmant/internal/domain/services/analysis"
)

// Service implements the TemplateService interface
type Service struct {
	repo     analysisRepo.TemplateRepository
	builtins []analysis.Template
	owners   services.OwnerAuthorizer
	policy   *bluemonday.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a template service over the given built-in catalog
func NewService(
	repo analysisRepo.TemplateRepository,
	builtins []analysis.Template,
	owners services.OwnerAuthorizer,
	logger *slog.Logger,
) analysisSvc.TemplateService {
	return &Service{
		repo:     repo,
		builtins: builtins,
		owners:   owners,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
		now:      time.Now,
	}
}

// List returns built-in templates followed by stored ones, optionally
// filtered by category (case-insensitive)
func (s *Service) List(ctx context.Context, category string) ([]analysis.Template, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	category = strings.TrimSpace(category)
	result := make([]analysis.Template, 0, len(s.builtins)+len(stored))
	for _, t := range append(append([]analysis.Template{}, s.builtins...), stored...) {
		if category != "" && !strings.EqualFold(t.Category, category) {
			continue
		}
		// seeded copies of built-ins are shadowed by the embedded version
		if !t.BuiltIn && s.builtin(t.ID) != nil {
			continue
		}
		result = append(result, t.Clone())
	}
	return result, nil
}

// Get returns a template by exact id
func (s *Service) Get(ctx context.Context, id string) (*analysis.Template, error) {
	if b := s.builtin(id); b != nil {
		out := b.Clone()
		return &out, nil
	}
	return s.repo.Get(ctx, id)
}

// Create stores a new owner-managed template
func (s *Service) Create(ctx context.Context, req *analysisSvc.TemplateRequest) (*analysis.Template, error) {
	if err := s.owners.RequireOwner(ctx); err != nil {
		return nil, err
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	tmpl := s.fromRequest(req)
	if err := s.checkBuiltinTitle(tmpl.Title); err != nil {
		return nil, err
	}
	now := s.now()
	tmpl.CreatedBy = req.UserID
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now

	if err := s.repo.Create(ctx, tmpl); err != nil {
		return nil, err
	}

	s.logger.Info("template created",
		"id", tmpl.ID,
		"title", tmpl.Title,
		"user_id", req.UserID,
	)
	return tmpl, nil
}

// Update replaces an owner-managed template. Built-ins are read-only.
func (s *Service) Update(ctx context.Context, id string, req *analysisSvc.TemplateRequest) (*analysis.Template, error) {
	if err := s.owners.RequireOwner(ctx); err != nil {
		return nil, err
	}
	if s.builtin(id) != nil {
		return nil, fmt.Errorf("built-in templates are read-only: %w", domain.ErrForbidden)
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tmpl := s.fromRequest(req)
	if err := s.checkBuiltinTitle(tmpl.Title); err != nil {
		return nil, err
	}
	tmpl.ID = existing.ID
	tmpl.CreatedBy = existing.CreatedBy
	tmpl.CreatedAt = existing.CreatedAt
	tmpl.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, tmpl); err != nil {
		return nil, err
	}

	s.logger.Info("template updated", "id", id, "user_id", req.UserID)
	return tmpl, nil
}

// Delete removes an owner-managed template
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.owners.RequireOwner(ctx); err != nil {
		return err
	}
	if s.builtin(id) != nil {
		return fmt.Errorf("built-in templates are read-only: %w", domain.ErrForbidden)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("template deleted", "id", id)
	return nil
}

func (s *Service) builtin(id string) *analysis.Template {
	for i := range s.builtins {
		if s.builtins[i].ID == id {
			return &s.builtins[i]
		}
	}
	return nil
}

func (s *Service) checkBuiltinTitle(title string) error {
	for _, b := range s.builtins {
		if strings.EqualFold(b.Title, title) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("template %q already exists", title),
				ResourceType: "template",
				ResourceID:   b.ID,
			}
		}
	}
	return nil
}

// fromRequest builds a template from sanitised request fields
func (s *Service) fromRequest(req *analysisSvc.TemplateRequest) *analysis.Template {
	fields := make([]analysis.ContextualField, len(req.ContextualFields))
	for i, f := range req.ContextualFields {
		f.ID = strings.TrimSpace(f.ID)
		f.Label = s.plain(f.Label)
		f.Placeholder = s.plain(f.Placeholder)
		if f.Options != nil {
			opts := make([]string, len(f.Options))
			for j, o := range f.Options {
				opts[j] = s.plain(o)
			}
			f.Options = opts
		}
		fields[i] = f
	}

	return &analysis.Template{
		Title:            s.plain(req.Title),
		Category:         strings.ToLower(s.plain(req.Category)),
		Description:      s.plain(req.Description),
		Prompt:           s.plain(req.Prompt),
		ContextualFields: fields,
	}
}

// plain strips markup. StrictPolicy escapes the text it keeps, so the result
// is unescaped again for storage as plain text.
func (s *Service) plain(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

// Validation methods

func (s *Service) validateRequest(req *analysisSvc.TemplateRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, config.MaxTemplateTitleLength),
		),
		validation.Field(&req.Category,
			validation.Required,
			validation.Length(1, config.MaxTemplateCategoryLength),
		),
		validation.Field(&req.Prompt,
			validation.Required,
			validation.Length(1, config.MaxTemplatePromptLength),
		),
		validation.Field(&req.ContextualFields, validation.Length(0, config.MaxContextualFields)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := validateFields(req.ContextualFields); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

var errSelectOptions = errors.New("select fields need at least one option")

func validateFields(fields []analysis.ContextualField) error {
	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		err := validation.ValidateStruct(f,
			validation.Field(&f.ID, validation.Required),
			validation.Field(&f.Label, validation.Required),
			validation.Field(&f.Type, validation.Required, validation.In(analysis.ValidFieldTypes...)),
		)
		if err != nil {
			return fmt.Errorf("contextual field %d: %v", i, err)
		}
		if seen[f.ID] {
			return fmt.Errorf("contextual field %d: duplicate id %q", i, f.ID)
		}
		seen[f.ID] = true
		if f.Type == analysis.FieldTypeSelect && len(f.Options) == 0 {
			return fmt.Errorf("contextual field %s: %w", f.ID, errSelectOptions)
		}
	}
	return nil
}
