package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"figmant/internal/domain/models/analysis"
)

type MessageStore struct {
	mu       sync.RWMutex
	messages map[string][]analysis.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[string][]analysis.Message),
	}
}

func (s *MessageStore) Append(_ context.Context, msg *analysis.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	stored := *msg
	stored.Attachments = analysis.CloneAttachments(msg.Attachments)
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], stored)
	return nil
}

func (s *MessageStore) ListBySession(_ context.Context, sessionID string) ([]analysis.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	out := make([]analysis.Message, len(msgs))
	for i, m := range msgs {
		m.Attachments = analysis.CloneAttachments(m.Attachments)
		out[i] = m
	}
	return out, nil
}
