package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	analysisRepo "figmant/internal/domain/repositories/analysis"
)

// PostgresSessionRepository implements analysisRepo.SessionRepository
type PostgresSessionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(config *RepositoryConfig) analysisRepo.SessionRepository {
	return &PostgresSessionRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

const sessionColumns = `id, user_id, name, created_at, last_activity, is_active`

func (r *PostgresSessionRepository) Create(ctx context.Context, session *analysis.Session) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, name, created_at, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, r.tables.Sessions)

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActivity.IsZero() {
		session.LastActivity = session.CreatedAt
	}

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		session.UserID,
		session.Name,
		session.CreatedAt,
		session.LastActivity,
		session.IsActive,
	).Scan(&session.ID)
	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("session '%s' already exists", session.Name),
				ResourceType: "session",
			}
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) Get(ctx context.Context, sessionID, userID string) (*analysis.Session, error) {
	if !validID(sessionID) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND user_id = $2`, sessionColumns, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	var s analysis.Session
	err := executor.QueryRow(ctx, query, sessionID, userID).Scan(
		&s.ID, &s.UserID, &s.Name, &s.CreatedAt, &s.LastActivity, &s.IsActive,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *PostgresSessionRepository) ListByUser(ctx context.Context, userID string) ([]analysis.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE user_id = $1
		ORDER BY last_activity DESC, created_at DESC
	`, sessionColumns, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []analysis.Session{}
	for rows.Next() {
		var s analysis.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.CreatedAt, &s.LastActivity, &s.IsActive); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *PostgresSessionRepository) Rename(ctx context.Context, sessionID, userID, name string) error {
	if !validID(sessionID) {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	query := fmt.Sprintf(`UPDATE %s SET name = $3 WHERE id = $1 AND user_id = $2`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, sessionID, userID, name)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return nil
}

// SetActive flips is_active for every session of the user in one statement,
// so at most one row stays active
func (r *PostgresSessionRepository) SetActive(ctx context.Context, sessionID, userID string) error {
	if !validID(sessionID) {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	query := fmt.Sprintf(`
		UPDATE %[1]s SET is_active = (id = $1)
		WHERE user_id = $2
		  AND EXISTS (SELECT 1 FROM %[1]s WHERE id = $1 AND user_id = $2)
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresSessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET last_activity = GREATEST(last_activity, $2)
		WHERE id = $1
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, sessionID, at); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// validID reports whether id can address a row; ids are UUIDs
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
