// Package workspace keeps the loaded chat states, one per session, and each
// user's active session.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"figmant/internal/domain"
	analysisRepo "figmant/internal/domain/repositories/analysis"
	"figmant/internal/metrics"
	"figmant/internal/service/analysis/chatstate"
)

// Workspace owns every in-memory chat state. Switching sessions unloads the
// previous session once it has no background work; states left unused are
// dropped by Sweep. An unloaded session reloads from the store on next use.
type Workspace struct {
	sessions analysisRepo.SessionRepository
	messages analysisRepo.MessageRepository
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	states map[string]*chatstate.State
	active map[string]string // user id -> session id
	loads  singleflight.Group
	now    func() time.Time
}

// New creates an empty workspace
func New(sessions analysisRepo.SessionRepository, messages analysisRepo.MessageRepository, logger *slog.Logger) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	return &Workspace{
		sessions: sessions,
		messages: messages,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		states:   make(map[string]*chatstate.State),
		active:   make(map[string]string),
		now:      time.Now,
	}
}

// State returns the loaded state of a session, loading its history on first
// use. Returns domain.ErrNotFound when the session does not belong to userID.
func (w *Workspace) State(ctx context.Context, sessionID, userID string) (*chatstate.State, error) {
	w.mu.RLock()
	st, ok := w.states[sessionID]
	w.mu.RUnlock()
	if ok {
		if st.UserID() != userID {
			return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
		}
		st.Touch(w.now())
		return st, nil
	}

	v, err, _ := w.loads.Do(userID+"/"+sessionID, func() (interface{}, error) {
		return w.load(ctx, sessionID, userID)
	})
	if err != nil {
		return nil, err
	}
	st = v.(*chatstate.State)
	if st.UserID() != userID {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	st.Touch(w.now())
	return st, nil
}

func (w *Workspace) load(ctx context.Context, sessionID, userID string) (*chatstate.State, error) {
	w.mu.RLock()
	st, ok := w.states[sessionID]
	w.mu.RUnlock()
	if ok {
		return st, nil
	}

	if _, err := w.sessions.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	history, err := w.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return nil, fmt.Errorf("workspace is shutting down")
	}
	if existing, ok := w.states[sessionID]; ok {
		return existing, nil
	}
	st = chatstate.New(w.ctx, sessionID, userID, history)
	st.Touch(w.now())
	w.states[sessionID] = st
	metrics.ActiveStates.Set(float64(len(w.states)))

	w.logger.Debug("session state loaded",
		"session_id", sessionID,
		"user_id", userID,
		"messages", len(history),
	)
	return st, nil
}

// Activate loads the session and makes it the user's active session. The
// previously active session is unloaded unless it still has work running.
func (w *Workspace) Activate(ctx context.Context, sessionID, userID string) (*chatstate.State, error) {
	st, err := w.State(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	prev := w.active[userID]
	w.active[userID] = sessionID
	w.mu.Unlock()

	if prev != "" && prev != sessionID {
		if w.unloadIf(prev, func(st *chatstate.State) bool { return st.Idle(w.now().Add(time.Nanosecond)) }) {
			w.logger.Debug("previous session unloaded on switch",
				"session_id", prev,
				"user_id", userID,
			)
		}
	}
	return st, nil
}

// Active returns the user's active session id, or "" when none was chosen
func (w *Workspace) Active(userID string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active[userID]
}

// Unload closes a session's state and forgets it. The next State call reloads
// the history from the store.
func (w *Workspace) Unload(sessionID string) {
	w.unloadIf(sessionID, func(*chatstate.State) bool { return true })
}

// Sweep unloads every state with no running work that has not been used for
// maxIdle. Returns the number of states unloaded.
func (w *Workspace) Sweep(maxIdle time.Duration) int {
	cutoff := w.now().Add(-maxIdle)

	w.mu.Lock()
	var evicted []*chatstate.State
	for id, st := range w.states {
		if st.Idle(cutoff) {
			delete(w.states, id)
			evicted = append(evicted, st)
		}
	}
	metrics.ActiveStates.Set(float64(len(w.states)))
	w.mu.Unlock()

	for _, st := range evicted {
		st.Close()
	}
	return len(evicted)
}

// RunSweeper calls Sweep every interval until ctx is done
func (w *Workspace) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.Sweep(maxIdle); n > 0 {
				w.logger.Info("idle sessions unloaded", "count", n)
			}
		}
	}
}

func (w *Workspace) unloadIf(sessionID string, cond func(st *chatstate.State) bool) bool {
	w.mu.Lock()
	st, ok := w.states[sessionID]
	if ok && !cond(st) {
		ok = false
	}
	if ok {
		delete(w.states, sessionID)
		metrics.ActiveStates.Set(float64(len(w.states)))
	}
	w.mu.Unlock()

	if ok {
		st.Close()
	}
	return ok
}

// CloseAll cancels background work of every loaded state and waits for it
func (w *Workspace) CloseAll() {
	w.mu.Lock()
	w.cancel()
	states := w.states
	w.states = make(map[string]*chatstate.State)
	w.active = make(map[string]string)
	metrics.ActiveStates.Set(0)
	w.mu.Unlock()

	for _, st := range states {
		st.Close()
	}
	w.logger.Info("workspace closed", "sessions", len(states))
}
