package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"figmant/internal/config"
	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	"figmant/internal/domain/repositories"
	analysisRepo "figmant/internal/domain/repositories/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/service/analysis/workspace"
)

// Service implements the SessionService interface
type Service struct {
	sessionRepo analysisRepo.SessionRepository
	messageRepo analysisRepo.MessageRepository
	txManager   repositories.TransactionManager
	workspace   *workspace.Workspace
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new session service
func NewService(
	sessionRepo analysisRepo.SessionRepository,
	messageRepo analysisRepo.MessageRepository,
	txManager repositories.TransactionManager,
	ws *workspace.Workspace,
	logger *slog.Logger,
) analysisSvc.SessionService {
	return &Service{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		txManager:   txManager,
		workspace:   ws,
		logger:      logger,
		now:         time.Now,
	}
}

// Create creates a session and makes it the user's active session
func (s *Service) Create(ctx context.Context, req *analysisSvc.CreateSessionRequest) (*analysis.Session, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = config.DefaultSessionName
	}

	now := s.now()
	sess := &analysis.Session{
		UserID:       req.UserID,
		Name:         name,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}

	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.sessionRepo.Create(ctx, sess); err != nil {
			return err
		}
		return s.sessionRepo.SetActive(ctx, sess.ID, req.UserID)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.workspace.Activate(ctx, sess.ID, req.UserID); err != nil {
		return nil, err
	}

	s.logger.Info("session created",
		"id", sess.ID,
		"name", sess.Name,
		"user_id", req.UserID,
	)

	return sess, nil
}

// Get retrieves a session owned by userID
func (s *Service) Get(ctx context.Context, sessionID, userID string) (*analysis.Session, error) {
	return s.sessionRepo.Get(ctx, sessionID, userID)
}

// List returns the user's sessions, most recent activity first
func (s *Service) List(ctx context.Context, userID string) ([]analysis.Session, error) {
	return s.sessionRepo.ListByUser(ctx, userID)
}

// Rename changes a session's display name
func (s *Service) Rename(ctx context.Context, sessionID, userID string, req *analysisSvc.RenameSessionRequest) (*analysis.Session, error) {
	if err := s.validateRenameRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	name := strings.TrimSpace(req.Name)
	if err := s.sessionRepo.Rename(ctx, sessionID, userID, name); err != nil {
		return nil, err
	}

	s.logger.Info("session renamed",
		"id", sessionID,
		"name", name,
		"user_id", userID,
	)

	return s.sessionRepo.Get(ctx, sessionID, userID)
}

// Switch marks the session as the user's single active session and loads
// its history into the workspace. The previous session is unloaded from
// memory once its background work is done.
func (s *Service) Switch(ctx context.Context, sessionID, userID string) (*analysis.Session, error) {
	if err := s.sessionRepo.SetActive(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	if _, err := s.workspace.Activate(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	s.logger.Debug("session switched", "id", sessionID, "user_id", userID)

	return s.sessionRepo.Get(ctx, sessionID, userID)
}

// Active returns the session the user last switched to in this process,
// falling back to the stored is_active flag
func (s *Service) Active(ctx context.Context, userID string) (*analysis.Session, error) {
	if id := s.workspace.Active(userID); id != "" {
		return s.sessionRepo.Get(ctx, id, userID)
	}

	sessions, err := s.sessionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].IsActive {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no active session", domain.ErrNotFound)
}

// History returns the persisted messages of a session owned by userID
func (s *Service) History(ctx context.Context, sessionID, userID string) ([]analysis.Message, error) {
	if _, err := s.sessionRepo.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListBySession(ctx, sessionID)
}

// Validation methods

func (s *Service) validateCreateRequest(req *analysisSvc.CreateSessionRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Name, validation.Length(0, config.MaxSessionNameLength)),
	)
}

func (s *Service) validateRenameRequest(req *analysisSvc.RenameSessionRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	return validation.ValidateStruct(req,
		validation.Field(&req.Name,
			validation.Required,
			validation.Length(1, config.MaxSessionNameLength),
		),
	)
}
