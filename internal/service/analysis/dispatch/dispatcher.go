// Package dispatch sends a composed message to the analysis provider and
// records the answer as an assistant message.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	analysisRepo "figmant/internal/domain/repositories/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/metrics"
	"figmant/internal/service/analysis/chatstate"
)

// Rejection messages for sends that fail a precondition
const (
	MsgEmptySend         = "please enter a message or attach a file"
	MsgPendingAttachment = "please wait for attachments to finish uploading"
	MsgFailedAttachment  = "remove failed attachments before sending"
)

// FallbackAnalysis is used when the provider answers without analysis text
const FallbackAnalysis = "Analysis completed."

// Dispatcher runs sends against one chat state at a time
type Dispatcher struct {
	analyzer analysisSvc.Analyzer
	messages analysisRepo.MessageRepository
	sessions analysisRepo.SessionRepository
	limiter  analysisSvc.RateLimiter
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewDispatcher creates a dispatcher. timeout bounds each analysis call;
// zero leaves it to the provider.
func NewDispatcher(
	analyzer analysisSvc.Analyzer,
	messages analysisRepo.MessageRepository,
	sessions analysisRepo.SessionRepository,
	limiter analysisSvc.RateLimiter,
	timeout time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		analyzer: analyzer,
		messages: messages,
		sessions: sessions,
		limiter:  limiter,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Dispatch is an accepted send. The user message is already in the history;
// the reply arrives when the task finishes.
type Dispatch struct {
	UserMessage analysis.Message
	task        *chatstate.Task
	reply       *analysis.Message
}

// Wait blocks until the assistant reply has been appended
func (d *Dispatch) Wait(ctx context.Context) (*analysis.Message, error) {
	if err := d.task.Wait(ctx); err != nil {
		return nil, err
	}
	return d.reply, nil
}

// Send validates the composer, appends the user message and clears the
// composer, then asks the analyzer in the background. Rejected sends leave
// the state untouched.
func (d *Dispatcher) Send(ctx context.Context, st *chatstate.State) (*Dispatch, error) {
	snap := st.Snapshot()
	if err := checkComposer(snap.Draft, snap.Attachments); err != nil {
		metrics.DispatchTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	consumed := false
	if d.limiter != nil {
		allowed, err := d.limiter.Allow(ctx, st.UserID())
		if err != nil {
			d.logger.Warn("rate limiter unavailable, allowing send", "user_id", st.UserID(), "error", err)
		} else if !allowed {
			metrics.DispatchTotal.WithLabelValues("rate_limited").Inc()
			return nil, &domain.RateLimitedError{Message: "too many analysis requests, please try again shortly"}
		} else {
			consumed = true
		}
	}

	sub, err := st.Submit(checkComposer, func(draft string, atts []analysis.Attachment) analysis.Message {
		return analysis.Message{
			ID:          d.newID(),
			SessionID:   st.SessionID(),
			Role:        analysis.RoleUser,
			Content:     draft,
			Attachments: atts,
			CreatedAt:   d.now(),
		}
	})
	if err != nil {
		if consumed {
			d.release(ctx, st.UserID())
		}
		metrics.DispatchTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// stored before the send is acknowledged so history reads include it
	d.persist(context.WithoutCancel(ctx), &sub.Message)

	d.logger.Info("analysis dispatched",
		"session_id", st.SessionID(),
		"message_id", sub.Message.ID,
		"attachments", len(sub.Message.Attachments),
		"template", templateID(sub.Template),
	)

	dispatch := &Dispatch{UserMessage: sub.Message}
	dispatch.task = st.Go(func(ctx context.Context) error {
		reply := d.complete(ctx, st, sub)
		dispatch.reply = &reply
		return nil
	})
	return dispatch, nil
}

func (d *Dispatcher) complete(ctx context.Context, st *chatstate.State, sub *chatstate.Submission) analysis.Message {
	start := d.now()

	req := &analysisSvc.AnalysisRequest{
		Message:     EffectiveText(sub.Message.Content, sub.Template),
		Attachments: make([]analysis.AttachmentRef, 0, len(sub.Message.Attachments)),
		Template:    sub.Template,
		SessionID:   st.SessionID(),
		UserID:      st.UserID(),
	}
	for _, a := range sub.Message.Attachments {
		req.Attachments = append(req.Attachments, a.Ref())
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	reply := analysis.Message{
		ID:        d.newID(),
		SessionID: st.SessionID(),
		Role:      analysis.RoleAssistant,
	}

	result, err := d.analyzer.Analyze(callCtx, req)
	if err == nil && result == nil {
		err = errors.New("empty response from analysis provider")
	}
	if err != nil {
		d.logger.Error("analysis failed",
			"session_id", st.SessionID(),
			"message_id", sub.Message.ID,
			"provider", d.analyzer.Name(),
			"error", err,
		)
		reply.Content = ErrorReply(err)
		reply.Metadata = &analysis.MessageMetadata{Error: true}
		metrics.DispatchTotal.WithLabelValues("failed").Inc()
	} else {
		reply.Content = result.Analysis
		if strings.TrimSpace(reply.Content) == "" {
			reply.Content = FallbackAnalysis
		}
		reply.Metadata = &analysis.MessageMetadata{
			Confidence:   result.Confidence,
			TokensUsed:   result.TokensUsed,
			AnalysisType: result.AnalysisType,
		}
		metrics.DispatchTotal.WithLabelValues("completed").Inc()
		metrics.AnalyzerTokens.WithLabelValues(d.analyzer.Name()).Add(float64(result.TokensUsed))
	}
	reply.CreatedAt = d.now()

	if err := st.Settle(reply); err != nil {
		d.logger.Error("failed to append reply", "session_id", st.SessionID(), "error", err)
	}
	metrics.DispatchDuration.Observe(d.now().Sub(start).Seconds())

	d.logger.Info("analysis settled",
		"session_id", st.SessionID(),
		"reply_id", reply.ID,
		"error", reply.IsError(),
	)

	// The state may be closing; persistence still gets a live context.
	d.persist(context.WithoutCancel(ctx), &reply)
	return reply
}

// slotReleaser is implemented by limiters that can hand back a slot taken by
// a send that was then rejected
type slotReleaser interface {
	Release(ctx context.Context, key string) error
}

func (d *Dispatcher) release(ctx context.Context, userID string) {
	r, ok := d.limiter.(slotReleaser)
	if !ok {
		return
	}
	if err := r.Release(ctx, userID); err != nil {
		d.logger.Warn("failed to release rate limit slot", "user_id", userID, "error", err)
	}
}

// persist writes msg to the store and bumps the session's activity. The
// in-memory history is never rolled back when this fails.
func (d *Dispatcher) persist(ctx context.Context, msg *analysis.Message) {
	if d.messages != nil {
		if err := d.messages.Append(ctx, msg); err != nil {
			d.logger.Error("failed to persist message",
				"session_id", msg.SessionID,
				"message_id", msg.ID,
				"error", err,
			)
			return
		}
	}
	if d.sessions != nil {
		if err := d.sessions.Touch(ctx, msg.SessionID, msg.CreatedAt); err != nil {
			d.logger.Warn("failed to touch session", "session_id", msg.SessionID, "error", err)
		}
	}
}

func checkComposer(draft string, attachments []analysis.Attachment) error {
	if strings.TrimSpace(draft) == "" && len(attachments) == 0 {
		return domain.NewValidationError(MsgEmptySend)
	}
	for _, a := range attachments {
		if a.Status.IsPending() {
			return domain.NewValidationError(MsgPendingAttachment)
		}
	}
	for _, a := range attachments {
		if a.Status == analysis.AttachmentStatusError {
			return domain.NewValidationError(MsgFailedAttachment)
		}
	}
	return nil
}

// EffectiveText is the text sent to the analyzer, expanded with the template
// context when one is selected
func EffectiveText(text string, tmpl *analysis.Template) string {
	if tmpl == nil {
		return text
	}
	return fmt.Sprintf("Using template: %s\n\nTemplate context: %s\n\nUser request: %s", tmpl.Title, tmpl.Prompt, text)
}

// ErrorReply is the assistant content recorded for a failed analysis
func ErrorReply(err error) string {
	return fmt.Sprintf("I encountered an error while analyzing your request: %s. Please try again.", err.Error())
}

func templateID(t *analysis.Template) string {
	if t == nil {
		return ""
	}
	return t.ID
}
