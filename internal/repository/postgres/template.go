package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	analysisRepo "figmant/internal/domain/repositories/analysis"
)

// PostgresTemplateRepository implements analysisRepo.TemplateRepository
type PostgresTemplateRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(config *RepositoryConfig) analysisRepo.TemplateRepository {
	return &PostgresTemplateRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

const templateColumns = `id, title, category, description, prompt, contextual_fields, created_by, created_at, updated_at`

func (r *PostgresTemplateRepository) List(ctx context.Context) ([]analysis.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY title`, templateColumns, r.tables.Templates)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []analysis.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

func (r *PostgresTemplateRepository) Get(ctx context.Context, id string) (*analysis.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, templateColumns, r.tables.Templates)

	executor := GetExecutor(ctx, r.pool)
	t, err := scanTemplate(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return t, nil
}

func (r *PostgresTemplateRepository) Create(ctx context.Context, tmpl *analysis.Template) error {
	fields, err := json.Marshal(tmpl.ContextualFields)
	if err != nil {
		return fmt.Errorf("marshal contextual fields: %w", err)
	}
	now := time.Now()
	tmpl.CreatedAt, tmpl.UpdatedAt = now, now

	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, category, description, prompt, contextual_fields, created_by, created_at, updated_at)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, $8, $8)
		RETURNING id
	`, r.tables.Templates)

	executor := GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query,
		tmpl.ID,
		tmpl.Title,
		tmpl.Category,
		tmpl.Description,
		tmpl.Prompt,
		fields,
		tmpl.CreatedBy,
		now,
	).Scan(&tmpl.ID)
	if err != nil {
		if IsPgDuplicateError(err) {
			return r.conflict(ctx, tmpl.Title)
		}
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *PostgresTemplateRepository) Update(ctx context.Context, tmpl *analysis.Template) error {
	fields, err := json.Marshal(tmpl.ContextualFields)
	if err != nil {
		return fmt.Errorf("marshal contextual fields: %w", err)
	}
	tmpl.UpdatedAt = time.Now()

	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $2, category = $3, description = $4, prompt = $5, contextual_fields = $6, updated_at = $7
		WHERE id = $1
	`, r.tables.Templates)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		tmpl.ID,
		tmpl.Title,
		tmpl.Category,
		tmpl.Description,
		tmpl.Prompt,
		fields,
		tmpl.UpdatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return r.conflict(ctx, tmpl.Title)
		}
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", tmpl.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresTemplateRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Templates)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// conflict builds a ConflictError pointing at the template holding title
func (r *PostgresTemplateRepository) conflict(ctx context.Context, title string) error {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE lower(title) = lower($1)`, r.tables.Templates)

	var existingID string
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, title).Scan(&existingID); err != nil {
		return fmt.Errorf("template '%s' already exists: %w", title, domain.ErrConflict)
	}
	return &domain.ConflictError{
		Message:      fmt.Sprintf("template '%s' already exists", title),
		ResourceType: "template",
		ResourceID:   existingID,
	}
}

func scanTemplate(row pgx.Row) (*analysis.Template, error) {
	var (
		t         analysis.Template
		fields    []byte
		createdBy *string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Category, &t.Description, &t.Prompt, &fields, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &t.ContextualFields); err != nil {
			return nil, fmt.Errorf("decode contextual fields of template %s: %w", t.ID, err)
		}
	}
	if createdBy != nil {
		t.CreatedBy = *createdBy
	}
	return &t, nil
}
