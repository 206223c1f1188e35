package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"figmant/internal/domain/models/analysis"
	analysisRepo "figmant/internal/domain/repositories/analysis"
)

// PostgresMessageRepository implements analysisRepo.MessageRepository.
// Attachments and metadata are stored as JSONB.
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(config *RepositoryConfig) analysisRepo.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

func (r *PostgresMessageRepository) Append(ctx context.Context, msg *analysis.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	var metadata []byte
	if msg.Metadata != nil {
		if metadata, err = json.Marshal(msg.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, role, content, attachments, metadata, created_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query,
		msg.ID,
		msg.SessionID,
		string(msg.Role),
		msg.Content,
		attachments,
		metadata,
		msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *PostgresMessageRepository) ListBySession(ctx context.Context, sessionID string) ([]analysis.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, role, content, attachments, metadata, created_at
		FROM %s
		WHERE session_id = $1
		ORDER BY seq
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []analysis.Message{}
	for rows.Next() {
		var (
			m           analysis.Message
			role        string
			attachments []byte
			metadata    []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &attachments, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = analysis.Role(role)
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments of message %s: %w", m.ID, err)
			}
		}
		if len(metadata) > 0 {
			m.Metadata = &analysis.MessageMetadata{}
			if err := json.Unmarshal(metadata, m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of message %s: %w", m.ID, err)
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
