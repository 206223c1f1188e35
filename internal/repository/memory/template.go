package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
)

type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*analysis.Template
}

func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		templates: make(map[string]*analysis.Template),
	}
}

func (s *TemplateStore) List(_ context.Context) ([]analysis.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]analysis.Template, 0, len(s.templates))
	for _, t := range s.templates {
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Title < result[j].Title })
	return result, nil
}

func (s *TemplateStore) Get(_ context.Context, id string) (*analysis.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
	}
	out := t.Clone()
	return &out, nil
}

func (s *TemplateStore) Create(_ context.Context, tmpl *analysis.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.byTitleLocked(tmpl.Title); existing != nil {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("template %q already exists", tmpl.Title),
			ResourceType: "template",
			ResourceID:   existing.ID,
		}
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	stored := tmpl.Clone()
	s.templates[tmpl.ID] = &stored
	return nil
}

func (s *TemplateStore) Update(_ context.Context, tmpl *analysis.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[tmpl.ID]; !ok {
		return fmt.Errorf("%w: template %s", domain.ErrNotFound, tmpl.ID)
	}
	if existing := s.byTitleLocked(tmpl.Title); existing != nil && existing.ID != tmpl.ID {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("template %q already exists", tmpl.Title),
			ResourceType: "template",
			ResourceID:   existing.ID,
		}
	}
	stored := tmpl.Clone()
	s.templates[tmpl.ID] = &stored
	return nil
}

func (s *TemplateStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
	}
	delete(s.templates, id)
	return nil
}

func (s *TemplateStore) byTitleLocked(title string) *analysis.Template {
	for _, t := range s.templates {
		if strings.EqualFold(t.Title, title) {
			return t
		}
	}
	return nil
}
