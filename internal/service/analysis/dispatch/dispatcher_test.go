package dispatch

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
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/service/analysis/chatstate"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	requests []*analysisSvc.AnalysisRequest
	result   *analysisSvc.AnalysisResult
	err      error
	release  chan struct{}
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, req *analysisSvc.AnalysisRequest) (*analysisSvc.AnalysisResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeMessages struct {
	mu   sync.Mutex
	msgs []analysis.Message
	err  error
}

func (f *fakeMessages) Append(_ context.Context, msg *analysis.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, *msg)
	return nil
}

func (f *fakeMessages) ListBySession(context.Context, string) ([]analysis.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]analysis.Message(nil), f.msgs...), nil
}

type fakeSessions struct {
	mu      sync.Mutex
	touched int
}

func (f *fakeSessions) Create(context.Context, *analysis.Session) error { return nil }
func (f *fakeSessions) Get(context.Context, string, string) (*analysis.Session, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeSessions) ListByUser(context.Context, string) ([]analysis.Session, error) {
	return nil, nil
}
func (f *fakeSessions) Rename(context.Context, string, string, string) error { return nil }
func (f *fakeSessions) SetActive(context.Context, string, string) error      { return nil }
func (f *fakeSessions) Touch(context.Context, string, time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	return nil
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (f fakeLimiter) Allow(context.Context, string) (bool, error) { return f.allow, f.err }

// slotLimiter allows every call and counts the slots taken and handed back
type slotLimiter struct {
	mu       sync.Mutex
	taken    int
	released int
}

func (l *slotLimiter) Allow(context.Context, string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.taken++
	return true, nil
}

func (l *slotLimiter) Release(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uploaded(t *testing.T, id string) analysis.Attachment {
	t.Helper()
	a, err := analysis.NewFileAttachment(id, id+".pdf", "application/pdf", 3)
	if err != nil {
		t.Fatal(err)
	}
	a.Status = analysis.AttachmentStatusUploaded
	a.Path = "s1/" + id + "/" + id + ".pdf"
	return *a
}

func newState(t *testing.T, draft string, atts ...analysis.Attachment) *chatstate.State {
	t.Helper()
	st := chatstate.New(context.Background(), "s1", "u1", nil)
	t.Cleanup(st.Close)
	st.SetMessage(draft)
	st.SetAttachments(atts)
	return st
}

func TestSendSuccess(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &analysisSvc.AnalysisResult{Analysis: "Looks good", TokensUsed: 42}}
	messages := &fakeMessages{}
	sessions := &fakeSessions{}
	d := NewDispatcher(analyzer, messages, sessions, nil, 0, testLogger())

	st := newState(t, "Review this", uploaded(t, "a1"))
	dispatch, err := d.Send(context.Background(), st)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if dispatch.UserMessage.Content != "Review this" || dispatch.UserMessage.Role != analysis.RoleUser {
		t.Errorf("unexpected user message: %+v", dispatch.UserMessage)
	}
	if st.Message() != "" || len(st.Attachments()) != 0 {
		t.Error("composer not cleared synchronously")
	}

	reply, err := dispatch.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if reply.Content != "Looks good" || reply.IsError() {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if reply.Metadata.TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42", reply.Metadata.TokensUsed)
	}

	history := st.Messages()
	if len(history) != 2 || history[0].Role != analysis.RoleUser || history[1].Role != analysis.RoleAssistant {
		t.Fatalf("unexpected history: %+v", history)
	}
	if len(history[0].Attachments) != 1 || history[0].Attachments[0].ID != "a1" {
		t.Error("user message lost its attachments")
	}

	req := analyzer.requests[0]
	if req.Message != "Review this" || req.Template != nil {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(req.Attachments) != 1 || req.Attachments[0].Path != "s1/a1/a1.pdf" {
		t.Errorf("unexpected request attachments: %+v", req.Attachments)
	}

	stored, _ := messages.ListBySession(context.Background(), "s1")
	if len(stored) != 2 {
		t.Errorf("persisted %d messages, want 2", len(stored))
	}
	if sessions.touched != 2 {
		t.Errorf("session touched %d times, want 2", sessions.touched)
	}
}

func TestSendAnalyzerFailure(t *testing.T) {
	d := NewDispatcher(&fakeAnalyzer{err: errors.New("timeout")}, &fakeMessages{}, &fakeSessions{}, nil, 0, testLogger())

	st := newState(t, "Review this", uploaded(t, "a1"))
	dispatch, err := d.Send(context.Background(), st)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	reply, err := dispatch.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	want := "I encountered an error while analyzing your request: timeout. Please try again."
	if reply.Content != want {
		t.Errorf("content = %q, want %q", reply.Content, want)
	}
	if !reply.IsError() {
		t.Error("error flag not set")
	}

	history := st.Messages()
	if len(history) != 2 || history[0].Content != "Review this" {
		t.Errorf("user message not preserved: %+v", history)
	}
}

func TestSendFallbackContent(t *testing.T) {
	d := NewDispatcher(&fakeAnalyzer{result: &analysisSvc.AnalysisResult{}}, nil, nil, nil, 0, testLogger())

	st := newState(t, "hi")
	dispatch, err := d.Send(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	reply, _ := dispatch.Wait(context.Background())
	if reply.Content != FallbackAnalysis {
		t.Errorf("content = %q, want fallback", reply.Content)
	}
}

func TestSendPersistenceFailureKeepsHistory(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &analysisSvc.AnalysisResult{Analysis: "ok"}}
	d := NewDispatcher(analyzer, &fakeMessages{err: errors.New("db down")}, &fakeSessions{}, nil, 0, testLogger())

	st := newState(t, "hi")
	dispatch, err := d.Send(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dispatch.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(st.Messages()); n != 2 {
		t.Errorf("history has %d messages, want 2", n)
	}
}

func TestSendRejections(t *testing.T) {
	pending := uploaded(t, "p1")
	pending.Status = analysis.AttachmentStatusUploading
	processing := uploaded(t, "p2")
	processing.Status = analysis.AttachmentStatusProcessing
	failed := uploaded(t, "f1")
	failed.Status = analysis.AttachmentStatusError

	tests := []struct {
		name    string
		draft   string
		atts    []analysis.Attachment
		limiter analysisSvc.RateLimiter
		wantErr error
		wantMsg string
	}{
		{name: "empty draft and no attachments", draft: "  \n", wantErr: domain.ErrValidation, wantMsg: MsgEmptySend},
		{name: "attachment uploading", draft: "go", atts: []analysis.Attachment{pending}, wantErr: domain.ErrValidation, wantMsg: MsgPendingAttachment},
		{name: "attachment processing", atts: []analysis.Attachment{uploaded(t, "ok"), processing}, wantErr: domain.ErrValidation, wantMsg: MsgPendingAttachment},
		{name: "attachment failed", draft: "go", atts: []analysis.Attachment{failed}, wantErr: domain.ErrValidation, wantMsg: MsgFailedAttachment},
		{name: "rate limited", draft: "go", limiter: fakeLimiter{allow: false}, wantErr: domain.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &fakeAnalyzer{result: &analysisSvc.AnalysisResult{Analysis: "x"}}
			d := NewDispatcher(analyzer, &fakeMessages{}, &fakeSessions{}, tt.limiter, 0, testLogger())
			st := newState(t, tt.draft, tt.atts...)
			before := st.Snapshot()

			_, err := d.Send(context.Background(), st)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}

			after := st.Snapshot()
			if len(after.Messages) != 0 || after.Draft != before.Draft || len(after.Attachments) != len(before.Attachments) {
				t.Errorf("state mutated by rejected send: %+v", after)
			}
			if len(analyzer.requests) != 0 {
				t.Error("analyzer called for rejected send")
			}
		})
	}
}

func TestSendLimiterErrorAllows(t *testing.T) {
	d := NewDispatcher(&fakeAnalyzer{result: &analysisSvc.AnalysisResult{Analysis: "x"}}, nil, nil,
		fakeLimiter{err: errors.New("redis down")}, 0, testLogger())

	st := newState(t, "go")
	dispatch, err := d.Send(context.Background(), st)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := dispatch.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSendWithTemplate(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &analysisSvc.AnalysisResult{Analysis: "x"}}
	d := NewDispatcher(analyzer, nil, nil, nil, 0, testLogger())

	st := newState(t, "go")
	st.SelectTemplate("seo", []analysis.Template{{ID: "seo", Title: "SEO Review", Prompt: "Check meta tags"}})

	dispatch, err := d.Send(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dispatch.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := "Using template: SEO Review\n\nTemplate context: Check meta tags\n\nUser request: go"
	req := analyzer.requests[0]
	if req.Message != want {
		t.Errorf("message = %q, want %q", req.Message, want)
	}
	if req.Template == nil || req.Template.ID != "seo" {
		t.Errorf("template not forwarded: %+v", req.Template)
	}
	if got := st.Messages()[0].Content; got != "go" {
		t.Errorf("user message content = %q, want original text", got)
	}
}

func TestConcurrentSendsPairUp(t *testing.T) {
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{result: &analysisSvc.AnalysisResult{Analysis: "done"}, release: release}
	d := NewDispatcher(analyzer, nil, nil, nil, 0, testLogger())
	st := newState(t, "")

	var dispatches []*Dispatch
	for _, text := range []string{"one", "two", "three"} {
		st.SetMessage(text)
		dispatch, err := d.Send(context.Background(), st)
		if err != nil {
			t.Fatalf("Send(%q) failed: %v", text, err)
		}
		dispatches = append(dispatches, dispatch)
	}

	if n := len(st.Messages()); n != 3 {
		t.Fatalf("user messages appended = %d, want 3 before any reply", n)
	}
	if st.Snapshot().Sending != 3 {
		t.Errorf("sending = %d, want 3", st.Snapshot().Sending)
	}

	close(release)
	for _, dispatch := range dispatches {
		if _, err := dispatch.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	var users, assistants int
	for _, m := range st.Messages() {
		switch m.Role {
		case analysis.RoleUser:
			users++
		case analysis.RoleAssistant:
			assistants++
			if assistants > users {
				t.Error("assistant message without a preceding user message")
			}
		}
	}
	if users != 3 || assistants != 3 {
		t.Errorf("users = %d, assistants = %d", users, assistants)
	}
}

func TestCloseDuringDispatchSettlesWithError(t *testing.T) {
	analyzer := &fakeAnalyzer{release: make(chan struct{})}
	d := NewDispatcher(analyzer, nil, nil, nil, 0, testLogger())

	st := chatstate.New(context.Background(), "s1", "u1", nil)
	st.SetMessage("go")
	dispatch, err := d.Send(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}

	st.Close()

	reply, err := dispatch.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reply.IsError() {
		t.Errorf("expected error reply after close, got %+v", reply)
	}
	if n := len(st.Messages()); n != 2 {
		t.Errorf("history = %d messages, want 2", n)
	}
}

func TestSendStoresUserMessageBeforeReturning(t *testing.T) {
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{result: &analysisSvc.AnalysisResult{Analysis: "ok"}, release: release}
	messages := &fakeMessages{}
	d := NewDispatcher(analyzer, messages, &fakeSessions{}, nil, 0, testLogger())

	st := newState(t, "Review this")
	dispatch, err := d.Send(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}

	stored, _ := messages.ListBySession(context.Background(), "s1")
	if len(stored) != 1 || stored[0].ID != dispatch.UserMessage.ID || stored[0].Role != analysis.RoleUser {
		t.Fatalf("stored before reply = %+v, want the user message", stored)
	}

	close(release)
	if _, err := dispatch.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	stored, _ = messages.ListBySession(context.Background(), "s1")
	if len(stored) != 2 || stored[1].Role != analysis.RoleAssistant {
		t.Errorf("stored after reply = %+v", stored)
	}
}

func TestSendOnClosedState(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &analysisSvc.AnalysisResult{Analysis: "x"}}
	messages := &fakeMessages{}
	limiter := &slotLimiter{}
	d := NewDispatcher(analyzer, messages, &fakeSessions{}, limiter, 0, testLogger())

	st := chatstate.New(context.Background(), "s1", "u1", nil)
	st.SetMessage("go")
	st.Close()

	if _, err := d.Send(context.Background(), st); !errors.Is(err, chatstate.ErrClosed) {
		t.Fatalf("Send err = %v, want ErrClosed", err)
	}

	snap := st.Snapshot()
	if len(snap.Messages) != 0 || snap.Sending != 0 {
		t.Errorf("closed state mutated: %+v", snap)
	}
	if stored, _ := messages.ListBySession(context.Background(), "s1"); len(stored) != 0 {
		t.Errorf("persisted %d messages for a rejected send", len(stored))
	}
	if len(analyzer.requests) != 0 {
		t.Error("analyzer called for a closed state")
	}
	if limiter.taken != 1 || limiter.released != 1 {
		t.Errorf("limiter taken = %d, released = %d, want 1 and 1", limiter.taken, limiter.released)
	}
}

func TestEffectiveText(t *testing.T) {
	if got := EffectiveText("plain", nil); got != "plain" {
		t.Errorf("EffectiveText without template = %q", got)
	}
}
