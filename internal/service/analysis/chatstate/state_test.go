package chatstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"figmant/internal/domain/models/analysis"
)

func newAttachment(id string) analysis.Attachment {
	a, _ := analysis.NewFileAttachment(id, id+".pdf", "application/pdf", 10)
	return *a
}

func TestConcurrentAttachmentUpdatesConverge(t *testing.T) {
	st := New(context.Background(), "s1", "u1", nil)
	defer st.Close()

	const n = 50
	for i := 0; i < n; i++ {
		if err := st.AddAttachment(newAttachment(fmt.Sprintf("a%d", i)), nil); err != nil {
			t.Fatalf("AddAttachment failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("a%d", i)
			st.UpdateAttachment(id, func(a *analysis.Attachment) {
				if i%2 == 0 {
					_ = a.Transition(analysis.AttachmentStatusUploaded)
				} else {
					_ = a.Fail("boom")
				}
			})
		}(i)
	}
	wg.Wait()

	got := st.Attachments()
	if len(got) != n {
		t.Fatalf("got %d attachments, want %d", len(got), n)
	}
	for i, a := range got {
		if a.ID != fmt.Sprintf("a%d", i) {
			t.Errorf("order changed at %d: %s", i, a.ID)
		}
		want := analysis.AttachmentStatusUploaded
		if i%2 == 1 {
			want = analysis.AttachmentStatusError
		}
		if a.Status != want {
			t.Errorf("%s status = %s, want %s", a.ID, a.Status, want)
		}
	}
}

func TestUpdateAttachmentMissing(t *testing.T) {
	st := New(context.Background(), "s1", "u1", nil)
	defer st.Close()

	if st.UpdateAttachment("nope", func(*analysis.Attachment) {}) {
		t.Error("expected false for unknown attachment")
	}
}

func TestAddAttachmentCheckVeto(t *testing.T) {
	st := New(context.Background(), "s1", "u1", nil)
	defer st.Close()

	veto := errors.New("vetoed")
	err := st.AddAttachment(newAttachment("a1"), func([]analysis.Attachment) error { return veto })
	if !errors.Is(err, veto) {
		t.Fatalf("err = %v, want veto", err)
	}
	if len(st.Attachments()) != 0 {
		t.Error("vetoed attachment was added")
	}
}

func TestUpdateAttachmentsTransform(t *testing.T) {
	st := New(context.Background(), "s1", "u1", nil)
	defer st.Close()

	st.SetAttachments([]analysis.Attachment{newAttachment("a1"), newAttachment("a2")})
	st.UpdateAttachments(func(prev []analysis.Attachment) []analysis.Attachment {
		return prev[1:]
	})

	got := st.Attachments()
	if len(got) != 1 || got[0].ID != "a2" {
		t.Errorf("unexpected attachments: %+v", got)
	}
}

func TestSubmit(t *testing.T) {
	build := func(draft string, atts []analysis.Attachment) analysis.Message {
		return analysis.Message{ID: "m1", Role: analysis.RoleUser, Content: draft, Attachments: atts}
	}

	t.Run("rejected submit leaves state untouched", func(t *testing.T) {
		st := New(context.Background(), "s1", "u1", nil)
		defer st.Close()
		st.SetMessage("hello")
		_ = st.AddAttachment(newAttachment("a1"), nil)

		_, err := st.Submit(func(string, []analysis.Attachment) error { return errors.New("no") }, build)
		if err == nil {
			t.Fatal("expected error")
		}

		snap := st.Snapshot()
		if snap.Draft != "hello" || len(snap.Attachments) != 1 || len(snap.Messages) != 0 || snap.Sending != 0 {
			t.Errorf("state mutated: %+v", snap)
		}
	})

	t.Run("accepted submit clears composer", func(t *testing.T) {
		st := New(context.Background(), "s1", "u1", nil)
		defer st.Close()
		st.SetMessage("hello")
		_ = st.AddAttachment(newAttachment("a1"), nil)

		sub, err := st.Submit(func(string, []analysis.Attachment) error { return nil }, build)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if sub.Message.Content != "hello" || len(sub.Message.Attachments) != 1 {
			t.Errorf("unexpected submission: %+v", sub.Message)
		}

		snap := st.Snapshot()
		if snap.Draft != "" || len(snap.Attachments) != 0 {
			t.Errorf("composer not cleared: %+v", snap)
		}
		if len(snap.Messages) != 1 || snap.Sending != 1 {
			t.Errorf("messages = %d, sending = %d", len(snap.Messages), snap.Sending)
		}
	})
}

func TestSettle(t *testing.T) {
	st := New(context.Background(), "s1", "u1", nil)
	defer st.Close()

	reply := analysis.Message{ID: "r1", Role: analysis.RoleAssistant, Content: "ok"}
	if err := st.Settle(reply); !errors.Is(err, ErrNoPendingDispatch) {
		t.Fatalf("Settle without submit: err = %v", err)
	}

	st.SetMessage("q")
	if _, err := st.Submit(
		func(string, []analysis.Attachment) error { return nil },
		func(d string, _ []analysis.Attachment) analysis.Message {
			return analysis.Message{ID: "m1", Role: analysis.RoleUser, Content: d}
		},
	); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := st.Settle(reply); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	msgs := st.Messages()
	if len(msgs) != 2 || msgs[0].Role != analysis.RoleUser || msgs[1].Role != analysis.RoleAssistant {
		t.Errorf("unexpected history: %+v", msgs)
	}
	if st.Snapshot().Sending != 0 {
		t.Error("inflight not decremented")
	}
}

func TestSelectTemplate(t *testing.T) {
	catalog := []analysis.Template{
		{ID: "seo", Title: "SEO Review"},
		{ID: "a11y", Title: "Accessibility"},
	}

	tests := []struct {
		name   string
		id     string
		wantID string
	}{
		{name: "exact match", id: "seo", wantID: "seo"},
		{name: "unknown id clears", id: "SEO", wantID: ""},
		{name: "empty id clears", id: "", wantID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := New(context.Background(), "s1", "u1", nil)
			defer st.Close()
			st.SelectTemplate("a11y", catalog)

			got := st.SelectTemplate(tt.id, catalog)
			selected := st.SelectedTemplate()
			if tt.wantID == "" {
				if got != nil || selected != nil {
					t.Errorf("expected selection cleared, got %+v", selected)
				}
				return
			}
			if selected == nil || selected.ID != tt.wantID {
				t.Errorf("selected = %+v, want %s", selected, tt.wantID)
			}
		})
	}
}

func TestCloseCancelsTasks(t *testing.T) {
	st := New(context.Background(), "s1", "u1", nil)

	started := make(chan struct{})
	task := st.Go(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	st.Close()

	select {
	case <-task.Done():
	default:
		t.Fatal("task still running after Close")
	}
	if !errors.Is(task.Err(), context.Canceled) {
		t.Errorf("task err = %v, want context.Canceled", task.Err())
	}

	ran := false
	late := st.Go(func(ctx context.Context) error {
		ran = true
		return ctx.Err()
	})
	if err := late.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("task on closed state: err = %v", err)
	}
	if !ran {
		t.Error("task on closed state was skipped")
	}
}

func TestClosedStateRejectsNewWork(t *testing.T) {
	st := New(context.Background(), "s1", "u1", nil)
	st.SetMessage("hello")
	st.Close()

	if err := st.AddAttachment(newAttachment("a1"), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("AddAttachment err = %v, want ErrClosed", err)
	}

	sub, err := st.Submit(
		func(string, []analysis.Attachment) error { return nil },
		func(draft string, _ []analysis.Attachment) analysis.Message {
			return analysis.Message{ID: "m1", Role: analysis.RoleUser, Content: draft}
		},
	)
	if !errors.Is(err, ErrClosed) || sub != nil {
		t.Fatalf("Submit = %v, %v, want ErrClosed", sub, err)
	}

	snap := st.Snapshot()
	if len(snap.Messages) != 0 || len(snap.Attachments) != 0 || snap.Sending != 0 || snap.Draft != "hello" {
		t.Errorf("closed state mutated: %+v", snap)
	}
}

func TestIdle(t *testing.T) {
	st := New(context.Background(), "s1", "u1", nil)
	defer st.Close()

	now := time.Now()
	st.Touch(now)
	if st.Idle(now) {
		t.Error("state used at the cutoff reported idle")
	}
	if !st.Idle(now.Add(time.Second)) {
		t.Error("unused state not idle")
	}

	release := make(chan struct{})
	task := st.Go(func(context.Context) error {
		<-release
		return nil
	})
	if st.Idle(now.Add(time.Second)) {
		t.Error("state with a running task reported idle")
	}
	close(release)
	_ = task.Wait(context.Background())
	if !st.Idle(now.Add(time.Second)) {
		t.Error("state not idle after its task finished")
	}
}
