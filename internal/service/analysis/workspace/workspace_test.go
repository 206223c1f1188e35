package workspace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	"figmant/internal/repository/memory"
	"figmant/internal/service/analysis/chatstate"
)

func setup(t *testing.T) (*Workspace, string) {
	t.Helper()
	sessions := memory.NewSessionStore()
	messages := memory.NewMessageStore()
	sess := &analysis.Session{UserID: "u1", Name: "s"}
	if err := sessions.Create(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	_ = messages.Append(context.Background(), &analysis.Message{SessionID: sess.ID, Role: analysis.RoleUser, Content: "hi"})
	return New(sessions, messages, slog.New(slog.NewTextHandler(io.Discard, nil))), sess.ID
}

func TestStateLoadsOnce(t *testing.T) {
	ws, id := setup(t)
	defer ws.CloseAll()

	var wg sync.WaitGroup
	states := make([]*chatstate.State, 10)
	for i := range states {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := ws.State(context.Background(), id, "u1")
			if err != nil {
				t.Error(err)
				return
			}
			states[i] = st
		}(i)
	}
	wg.Wait()

	for _, st := range states[1:] {
		if st != states[0] {
			t.Fatal("concurrent loads produced different states")
		}
	}
	if n := len(states[0].Messages()); n != 1 {
		t.Errorf("history = %d messages, want 1", n)
	}
}

func TestStateOwnership(t *testing.T) {
	ws, id := setup(t)
	defer ws.CloseAll()

	if _, err := ws.State(context.Background(), id, "intruder"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unloaded foreign session: err = %v", err)
	}
	if _, err := ws.State(context.Background(), id, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.State(context.Background(), id, "intruder"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("loaded foreign session: err = %v", err)
	}
}

func TestUnloadAndCloseAll(t *testing.T) {
	ws, id := setup(t)

	st, err := ws.Activate(context.Background(), id, "u1")
	if err != nil {
		t.Fatal(err)
	}
	st.SetMessage("draft")

	ws.Unload(id)
	if st.Context().Err() == nil {
		t.Error("unloaded state not closed")
	}

	reloaded, err := ws.State(context.Background(), id, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded == st || reloaded.Message() != "" {
		t.Error("unload did not drop the in-memory state")
	}

	ws.CloseAll()
	if reloaded.Context().Err() == nil {
		t.Error("CloseAll left a state open")
	}
	if ws.Active("u1") != "" {
		t.Error("CloseAll kept active pointers")
	}
	if _, err := ws.State(context.Background(), id, "u1"); err == nil {
		t.Error("expected error loading after CloseAll")
	}
}

func addSession(t *testing.T, ws *Workspace, userID string) string {
	t.Helper()
	sess := &analysis.Session{UserID: userID, Name: "another"}
	if err := ws.sessions.Create(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	return sess.ID
}

func TestSwitchUnloadsPreviousSession(t *testing.T) {
	ws, first := setup(t)
	defer ws.CloseAll()
	second := addSession(t, ws, "u1")

	prev, err := ws.Activate(context.Background(), first, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Activate(context.Background(), second, "u1"); err != nil {
		t.Fatal(err)
	}

	if !prev.Closed() {
		t.Error("previous session still loaded after switch")
	}
	if ws.Active("u1") != second {
		t.Errorf("active = %s, want %s", ws.Active("u1"), second)
	}

	reloaded, err := ws.State(context.Background(), first, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded == prev || len(reloaded.Messages()) != 1 {
		t.Error("switching back did not reload history from the store")
	}
}

func TestSwitchKeepsBusyPreviousSession(t *testing.T) {
	ws, first := setup(t)
	defer ws.CloseAll()
	second := addSession(t, ws, "u1")

	prev, err := ws.Activate(context.Background(), first, "u1")
	if err != nil {
		t.Fatal(err)
	}
	release := make(chan struct{})
	task := prev.Go(func(context.Context) error {
		<-release
		return nil
	})

	if _, err := ws.Activate(context.Background(), second, "u1"); err != nil {
		t.Fatal(err)
	}
	if prev.Closed() {
		t.Error("session with running work unloaded on switch")
	}
	if st, _ := ws.State(context.Background(), first, "u1"); st != prev {
		t.Error("busy session was replaced")
	}

	close(release)
	if err := task.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSweepUnloadsIdleStates(t *testing.T) {
	ws, first := setup(t)
	defer ws.CloseAll()
	second := addSession(t, ws, "u1")

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ws.now = func() time.Time { return clock }

	stale, err := ws.State(context.Background(), first, "u1")
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(20 * time.Minute)
	fresh, err := ws.State(context.Background(), second, "u1")
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(5 * time.Minute)

	if n := ws.Sweep(10 * time.Minute); n != 1 {
		t.Fatalf("Sweep unloaded %d states, want 1", n)
	}
	if !stale.Closed() {
		t.Error("idle state kept")
	}
	if fresh.Closed() {
		t.Error("recently used state unloaded")
	}

	clock = clock.Add(time.Hour)
	release := make(chan struct{})
	task := fresh.Go(func(context.Context) error {
		<-release
		return nil
	})
	if n := ws.Sweep(10 * time.Minute); n != 0 {
		t.Errorf("Sweep unloaded %d states with running work", n)
	}
	close(release)
	_ = task.Wait(context.Background())
}
