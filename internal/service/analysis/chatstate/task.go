package chatstate

import (
	"context"
)

// Task is a handle on background work started for a state
type Task struct {
	done chan struct{}
	err  error
}

// Done is closed when the work has finished
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the work's error. Only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the work finishes or ctx is done
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go runs fn in the background with the state's context. On a closed state
// fn runs synchronously with the cancelled context so it can still settle
// whatever it was started for.
func (s *State) Go(fn func(ctx context.Context) error) *Task {
	t := &Task{done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.err = fn(s.ctx)
		close(t.done)
		return t
	}
	s.tasks.Add(1)
	s.running++
	s.mu.Unlock()

	go func() {
		defer s.tasks.Done()
		defer close(t.done)
		defer func() {
			s.mu.Lock()
			s.running--
			s.mu.Unlock()
		}()
		t.err = fn(s.ctx)
	}()
	return t
}

// Wait blocks until every task started so far has finished
func (s *State) Wait() {
	s.tasks.Wait()
}
