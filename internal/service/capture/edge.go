package capture

import (
	"context"

	"figmant/internal/domain/models/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
)

// Invoker calls a Supabase edge function
type Invoker interface {
	Invoke(ctx context.Context, name string, payload, out interface{}) error
}

// Edge asks the screenshot edge function to capture pages
type Edge struct {
	functions Invoker
	function  string
}

// NewEdge creates a capturer that calls the named edge function
func NewEdge(functions Invoker, function string) *Edge {
	return &Edge{functions: functions, function: function}
}

type edgeResult struct {
	URL     string                     `json:"url"`
	Desktop *analysis.ScreenshotResult `json:"desktop"`
	Mobile  *analysis.ScreenshotResult `json:"mobile"`
}

type edgeResponse struct {
	Results []edgeResult `json:"results"`
}

// MsgNoResult is recorded for a requested viewport the edge function did not report
const MsgNoResult = "no screenshot returned"

// Capture posts {urls, desktop, mobile} and expects
// {results: [{url, desktop, mobile}]}. URLs missing from the answer are
// absent from the returned map; a requested viewport missing from a result
// is recorded as failed.
func (e *Edge) Capture(ctx context.Context, req analysisSvc.CaptureRequest) (map[string]*analysis.ScreenshotSet, error) {
	var resp edgeResponse
	if err := e.functions.Invoke(ctx, e.function, req, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]*analysis.ScreenshotSet, len(resp.Results))
	for _, r := range resp.Results {
		set := &analysis.ScreenshotSet{Desktop: r.Desktop, Mobile: r.Mobile}
		if req.Desktop && set.Desktop == nil {
			set.Desktop = &analysis.ScreenshotResult{Error: MsgNoResult}
		}
		if req.Mobile && set.Mobile == nil {
			set.Mobile = &analysis.ScreenshotResult{Error: MsgNoResult}
		}
		out[r.URL] = set
	}
	return out, nil
}
