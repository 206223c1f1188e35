// Package capture implements the screenshot capturers used for URL
// attachments: the Supabase screenshot edge function, a local headless
// Chrome driven by go-rod, and a disabled capturer.
package capture

import (
	"context"

	"figmant/internal/domain/models/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
)

// Viewport is a device size a page is rendered at
type Viewport struct {
	Name              string
	Width             int
	Height            int
	DeviceScaleFactor float64
	Mobile            bool
}

var (
	Desktop = Viewport{Name: "desktop", Width: 1440, Height: 900, DeviceScaleFactor: 1}
	Mobile  = Viewport{Name: "mobile", Width: 390, Height: 844, DeviceScaleFactor: 2, Mobile: true}
)

// MsgDisabled is recorded for every viewport when capture is turned off
const MsgDisabled = "screenshot capture disabled"

// Disabled reports every requested viewport as failed
type Disabled struct{}

func (Disabled) Capture(_ context.Context, req analysisSvc.CaptureRequest) (map[string]*analysis.ScreenshotSet, error) {
	out := make(map[string]*analysis.ScreenshotSet, len(req.URLs))
	for _, u := range req.URLs {
		set := &analysis.ScreenshotSet{}
		if req.Desktop {
			set.Desktop = &analysis.ScreenshotResult{Error: MsgDisabled}
		}
		if req.Mobile {
			set.Mobile = &analysis.ScreenshotResult{Error: MsgDisabled}
		}
		out[u] = set
	}
	return out, nil
}
