package analysis

import (
	"context"
	"io"

	"figmant/internal/domain/models/analysis"
)

// AnalysisRequest is what the dispatch flow sends to the analysis endpoint
type AnalysisRequest struct {
	Message     string                   `json:"message"`
	Attachments []analysis.AttachmentRef `json:"attachments"`
	Template    *analysis.Template       `json:"template"`
	SessionID   string                   `json:"session_id,omitempty"`
	UserID      string                   `json:"-"`
}

// AnalysisResult is the endpoint's answer. Analysis may be empty when the
// endpoint omitted the field.
type AnalysisResult struct {
	Analysis     string   `json:"analysis"`
	Confidence   *float64 `json:"confidence,omitempty"`
	TokensUsed   int      `json:"tokens_used,omitempty"`
	AnalysisType string   `json:"analysis_type,omitempty"`
}

// Analyzer is the external LLM analysis endpoint
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error)
}

// StoredObject describes an uploaded blob
type StoredObject struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// FileStorage uploads binary content to remote storage
type FileStorage interface {
	Upload(ctx context.Context, path, contentType string, body io.Reader) (*StoredObject, error)
}

// CaptureRequest asks for screenshots of each URL in the requested viewports
type CaptureRequest struct {
	URLs    []string `json:"urls"`
	Desktop bool     `json:"desktop"`
	Mobile  bool     `json:"mobile"`
}

// ScreenshotCapturer is the external screenshot capture service.
// The result is keyed by URL.
type ScreenshotCapturer interface {
	Capture(ctx context.Context, req CaptureRequest) (map[string]*analysis.ScreenshotSet, error)
}

// ProcessedImage is the validated, possibly re-encoded form of an upload
type ProcessedImage struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// ImageProcessor validates and reprocesses images before upload.
// A returned error is user-facing.
type ImageProcessor interface {
	Process(ctx context.Context, name string, data []byte) (*ProcessedImage, error)
}

// RateLimiter decides whether key may perform another dispatch
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
