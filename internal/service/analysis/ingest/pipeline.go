// Package ingest turns user-supplied files and URLs into composer attachments.
// The attachment is added synchronously in a pending status; upload, image
// processing and screenshot capture run in the background and finish by
// updating the attachment by id.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/metrics"
	"figmant/internal/service/analysis/chatstate"
)

// UploadedFile is a file handed to the pipeline by the transport layer
type UploadedFile struct {
	Filename string
	Content  io.Reader
}

// Pipeline ingests attachments into a chat state
type Pipeline struct {
	storage  analysisSvc.FileStorage
	images   analysisSvc.ImageProcessor
	capturer analysisSvc.ScreenshotCapturer
	maxBytes int64
	logger   *slog.Logger
	newID    func() string
}

// NewPipeline creates an ingestion pipeline. maxBytes caps the size of a
// single uploaded file; zero means unlimited.
func NewPipeline(
	storage analysisSvc.FileStorage,
	images analysisSvc.ImageProcessor,
	capturer analysisSvc.ScreenshotCapturer,
	maxBytes int64,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		storage:  storage,
		images:   images,
		capturer: capturer,
		maxBytes: maxBytes,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// IngestFile adds the file to the composer with status uploading and starts
// the upload. The content is read fully before returning so the caller may
// release it.
func (p *Pipeline) IngestFile(st *chatstate.State, file UploadedFile) (*analysis.Attachment, *chatstate.Task, error) {
	name := strings.TrimSpace(filepath.Base(file.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, nil, domain.NewValidationError("file name is required")
	}

	reader := file.Content
	if p.maxBytes > 0 {
		reader = io.LimitReader(file.Content, p.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	if p.maxBytes > 0 && int64(len(data)) > p.maxBytes {
		return nil, nil, domain.NewValidationError("file %s exceeds the %d byte limit", name, p.maxBytes)
	}

	mtype := mimetype.Detect(data)
	contentType := mtype.String()

	var att *analysis.Attachment
	if strings.HasPrefix(contentType, "image/") {
		att, err = analysis.NewImageAttachment(p.newID(), name, contentType, int64(len(data)))
	} else {
		att, err = analysis.NewFileAttachment(p.newID(), name, contentType, int64(len(data)))
	}
	if err != nil {
		return nil, nil, domain.NewValidationError("%s", err.Error())
	}

	if err := st.AddAttachment(*att, nil); err != nil {
		return nil, nil, err
	}

	p.logger.Debug("file attachment added",
		"session_id", st.SessionID(),
		"attachment_id", att.ID,
		"kind", att.Kind,
		"content_type", contentType,
		"size", len(data),
	)

	id, kind := att.ID, att.Kind
	task := st.Go(func(ctx context.Context) error {
		return p.upload(ctx, st, id, kind, name, contentType, data)
	})
	return att, task, nil
}

func (p *Pipeline) upload(
	ctx context.Context,
	st *chatstate.State,
	id string,
	kind analysis.AttachmentKind,
	name, contentType string,
	data []byte,
) error {
	if kind == analysis.AttachmentKindImage {
		if !p.update(st, id, func(a *analysis.Attachment) error {
			return a.Transition(analysis.AttachmentStatusProcessing)
		}) {
			return nil
		}

		processed, err := p.images.Process(ctx, name, data)
		if err != nil {
			p.fail(st, id, kind, err.Error())
			return nil
		}
		data = processed.Data
		contentType = processed.ContentType
		p.update(st, id, func(a *analysis.Attachment) error {
			a.Metadata.ContentType = contentType
			a.Metadata.Size = int64(len(data))
			if a.Metadata.Extra == nil {
				a.Metadata.Extra = map[string]interface{}{}
			}
			a.Metadata.Extra["width"] = processed.Width
			a.Metadata.Extra["height"] = processed.Height
			return nil
		})
	}

	objectPath := ObjectPath(st.SessionID(), id, name)
	obj, err := p.storage.Upload(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		p.logger.Warn("attachment upload failed",
			"session_id", st.SessionID(),
			"attachment_id", id,
			"error", err,
		)
		p.fail(st, id, kind, fmt.Sprintf("upload failed: %v", err))
		return nil
	}

	p.update(st, id, func(a *analysis.Attachment) error {
		if err := a.Transition(analysis.AttachmentStatusUploaded); err != nil {
			return err
		}
		a.Path = obj.Path
		a.URL = obj.URL
		return nil
	})
	metrics.IngestionTotal.WithLabelValues(string(kind), string(analysis.AttachmentStatusUploaded)).Inc()
	return nil
}

// IngestURL normalises raw, rejects invalid and duplicate URLs, then adds a
// processing attachment and starts screenshot capture. Capture problems never
// fail the attachment.
func (p *Pipeline) IngestURL(st *chatstate.State, raw string) (*analysis.Attachment, *chatstate.Task, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return nil, nil, err
	}

	att, err := analysis.NewURLAttachment(p.newID(), normalized)
	if err != nil {
		return nil, nil, domain.NewValidationError("invalid URL")
	}

	err = st.AddAttachment(*att, func(current []analysis.Attachment) error {
		for _, existing := range current {
			if existing.Kind == analysis.AttachmentKindURL && existing.URL == normalized {
				return domain.NewValidationError("%s has already been added", normalized)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	p.logger.Debug("url attachment added",
		"session_id", st.SessionID(),
		"attachment_id", att.ID,
		"url", normalized,
	)

	id := att.ID
	task := st.Go(func(ctx context.Context) error {
		return p.capture(ctx, st, id, normalized)
	})
	return att, task, nil
}

func (p *Pipeline) capture(ctx context.Context, st *chatstate.State, id, target string) error {
	var shots *analysis.ScreenshotSet

	results, err := p.capturer.Capture(ctx, analysisSvc.CaptureRequest{
		URLs:    []string{target},
		Desktop: true,
		Mobile:  true,
	})
	switch {
	case err != nil:
		p.logger.Warn("screenshot capture failed",
			"session_id", st.SessionID(),
			"attachment_id", id,
			"url", target,
			"error", err,
		)
		shots = analysis.FailedScreenshots(err.Error())
	case results[target] == nil:
		shots = analysis.FailedScreenshots("no screenshots returned")
	default:
		shots = results[target]
	}

	p.update(st, id, func(a *analysis.Attachment) error {
		if err := a.Transition(analysis.AttachmentStatusUploaded); err != nil {
			return err
		}
		if a.Metadata == nil {
			a.Metadata = &analysis.AttachmentMetadata{}
		}
		a.Metadata.Screenshots = shots
		return nil
	})
	metrics.IngestionTotal.WithLabelValues(string(analysis.AttachmentKindURL), string(analysis.AttachmentStatusUploaded)).Inc()
	return nil
}

// update applies fn to the attachment. Returns false when the attachment was
// removed from the composer or fn refused the change.
func (p *Pipeline) update(st *chatstate.State, id string, fn func(a *analysis.Attachment) error) bool {
	var fnErr error
	found := st.UpdateAttachment(id, func(a *analysis.Attachment) {
		if a.Metadata == nil {
			a.Metadata = &analysis.AttachmentMetadata{}
		}
		fnErr = fn(a)
	})
	if !found {
		p.logger.Debug("attachment removed before ingestion finished",
			"session_id", st.SessionID(),
			"attachment_id", id,
		)
		return false
	}
	if fnErr != nil {
		p.logger.Warn("attachment update rejected",
			"session_id", st.SessionID(),
			"attachment_id", id,
			"error", fnErr,
		)
		return false
	}
	return true
}

func (p *Pipeline) fail(st *chatstate.State, id string, kind analysis.AttachmentKind, msg string) {
	p.update(st, id, func(a *analysis.Attachment) error {
		return a.Fail(msg)
	})
	metrics.IngestionTotal.WithLabelValues(string(kind), string(analysis.AttachmentStatusError)).Inc()
}

// NormalizeURL trims raw and prefixes https:// when no scheme is present.
// The result must be an absolute http(s) URL with a host.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", domain.NewValidationError("invalid URL")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", domain.NewValidationError("invalid URL")
	}
	return s, nil
}

var unsafeObjectChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectPath is the storage location of an attachment's bytes
func ObjectPath(sessionID, attachmentID, name string) string {
	clean := unsafeObjectChars.ReplaceAllString(filepath.Base(name), "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		clean = "file"
	}
	return sessionID + "/" + attachmentID + "/" + clean
}
