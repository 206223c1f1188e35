// Package chatstate holds the in-memory state of one loaded analysis session:
// the composer (draft text, attachments, selected template) and the message
// history. All mutations go through State methods, which serialise on a
// mutex; attachments are addressed by id so concurrent ingestion completions
// converge regardless of order.
package chatstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"figmant/internal/domain/models/analysis"
)

var (
	// ErrNoPendingDispatch is returned by Settle when no user message is awaiting an answer
	ErrNoPendingDispatch = errors.New("no dispatch awaiting a reply")

	// ErrClosed is returned by operations that would start work on a closed state
	ErrClosed = errors.New("session state is closed")
)

// State is the mutable single-session chat state
type State struct {
	mu sync.Mutex

	sessionID string
	userID    string

	draft       string
	attachments map[string]*analysis.Attachment
	order       []string
	messages    []analysis.Message
	template    *analysis.Template
	inflight    int
	running     int
	lastUsed    time.Time
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

// Snapshot is a consistent copy of the state for rendering
type Snapshot struct {
	SessionID   string                `json:"session_id"`
	Draft       string                `json:"draft"`
	Attachments []analysis.Attachment `json:"attachments"`
	Messages    []analysis.Message    `json:"messages"`
	Template    *analysis.Template    `json:"template"`
	Sending     int                   `json:"sending"`
}

// New creates the state for a session, seeded with its persisted history.
// Background work started through Go derives from parent and stops on Close.
func New(parent context.Context, sessionID, userID string, history []analysis.Message) *State {
	ctx, cancel := context.WithCancel(parent)
	messages := make([]analysis.Message, 0, len(history))
	messages = append(messages, history...)
	return &State{
		sessionID:   sessionID,
		userID:      userID,
		attachments: make(map[string]*analysis.Attachment),
		messages:    messages,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *State) SessionID() string { return s.sessionID }
func (s *State) UserID() string    { return s.userID }

// Context is cancelled when the state is closed
func (s *State) Context() context.Context { return s.ctx }

// Closed reports whether Close has been called
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Touch records that the state was just used
func (s *State) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastUsed) {
		s.lastUsed = now
	}
}

// Idle reports whether no background work is running and the state was last
// used before cutoff
func (s *State) Idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running == 0 && s.inflight == 0 && s.lastUsed.Before(cutoff)
}

// Close cancels in-flight background work and waits for it to finish
func (s *State) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.tasks.Wait()
}

// SetMessage replaces the draft text
func (s *State) SetMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Message returns the draft text
func (s *State) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetAttachments replaces the composer attachment list
func (s *State) SetAttachments(list []analysis.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(list)
}

// UpdateAttachments replaces the list with fn applied to the current list
func (s *State) UpdateAttachments(fn func(prev []analysis.Attachment) []analysis.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(fn(s.listLocked()))
}

// UpdateAttachment applies fn to the attachment with the given id.
// Returns false if the attachment is no longer in the composer.
func (s *State) UpdateAttachment(id string, fn func(a *analysis.Attachment)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attachments[id]
	if !ok {
		return false
	}
	fn(a)
	return true
}

// AddAttachment appends a to the composer. check, when non-nil, sees the
// current list under the same lock and may veto the insert.
func (s *State) AddAttachment(a analysis.Attachment, check func(current []analysis.Attachment) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.attachments[a.ID]; exists {
		return fmt.Errorf("attachment %s already present", a.ID)
	}
	if check != nil {
		if err := check(s.listLocked()); err != nil {
			return err
		}
	}
	stored := a.Clone()
	s.attachments[a.ID] = &stored
	s.order = append(s.order, a.ID)
	return nil
}

// RemoveAttachment drops an attachment from the composer
func (s *State) RemoveAttachment(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[id]; !ok {
		return false
	}
	delete(s.attachments, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Attachments returns a copy of the composer attachments in insertion order
func (s *State) Attachments() []analysis.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Attachment returns a copy of one composer attachment
func (s *State) Attachment(id string) (analysis.Attachment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attachments[id]
	if !ok {
		return analysis.Attachment{}, false
	}
	return a.Clone(), true
}

// AppendMessage appends to the history
func (s *State) AppendMessage(msg analysis.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(msg)
}

// Messages returns a copy of the history
func (s *State) Messages() []analysis.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesLocked()
}

// SelectTemplate sets the active template to the catalog entry whose id
// matches exactly. An unknown or empty id clears the selection.
func (s *State) SelectTemplate(id string, catalog []analysis.Template) *analysis.Template {
	var found *analysis.Template
	for i := range catalog {
		if catalog[i].ID == id {
			t := catalog[i].Clone()
			found = &t
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.template = found
	return copyTemplate(found)
}

// SelectedTemplate returns the active template or nil
func (s *State) SelectedTemplate() *analysis.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTemplate(s.template)
}

// Snapshot returns a consistent copy of every field
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:   s.sessionID,
		Draft:       s.draft,
		Attachments: s.listLocked(),
		Messages:    s.messagesLocked(),
		Template:    copyTemplate(s.template),
		Sending:     s.inflight,
	}
}

// Submission is the outcome of the synchronous half of a send
type Submission struct {
	Message  analysis.Message
	Template *analysis.Template
}

// Submit performs the synchronous half of a send atomically: validate sees
// the draft and attachments; on success build's message is appended and the
// composer is cleared. Nothing changes when validate fails.
func (s *State) Submit(
	validate func(draft string, attachments []analysis.Attachment) error,
	build func(draft string, attachments []analysis.Attachment) analysis.Message,
) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	current := s.listLocked()
	if err := validate(s.draft, current); err != nil {
		return nil, err
	}

	msg := build(s.draft, current)
	s.appendLocked(msg)
	s.draft = ""
	s.attachments = make(map[string]*analysis.Attachment)
	s.order = nil
	s.inflight++

	return &Submission{
		Message:  cloneMessage(msg),
		Template: copyTemplate(s.template),
	}, nil
}

// Settle appends the reply to a previously submitted message
func (s *State) Settle(reply analysis.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == 0 {
		return ErrNoPendingDispatch
	}
	s.inflight--
	s.appendLocked(reply)
	return nil
}

func (s *State) replaceLocked(list []analysis.Attachment) {
	s.attachments = make(map[string]*analysis.Attachment, len(list))
	s.order = make([]string, 0, len(list))
	for _, a := range list {
		if _, dup := s.attachments[a.ID]; dup {
			continue
		}
		stored := a.Clone()
		s.attachments[a.ID] = &stored
		s.order = append(s.order, a.ID)
	}
}

func (s *State) listLocked() []analysis.Attachment {
	out := make([]analysis.Attachment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.attachments[id].Clone())
	}
	return out
}

func (s *State) appendLocked(msg analysis.Message) {
	s.messages = append(s.messages, cloneMessage(msg))
}

func (s *State) messagesLocked() []analysis.Message {
	out := make([]analysis.Message, len(s.messages))
	for i := range s.messages {
		out[i] = cloneMessage(s.messages[i])
	}
	return out
}

func cloneMessage(m analysis.Message) analysis.Message {
	m.Attachments = analysis.CloneAttachments(m.Attachments)
	if m.Metadata != nil {
		md := *m.Metadata
		m.Metadata = &md
	}
	return m
}

func copyTemplate(t *analysis.Template) *analysis.Template {
	if t == nil {
		return nil
	}
	c := t.Clone()
	return &c
}
