package capture

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/errgroup"

	"figmant/internal/domain/models/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
)

// Rod captures screenshots with a local headless Chrome and uploads them to
// storage. The browser is launched on first use.
type Rod struct {
	bin        string
	storage    analysisSvc.FileStorage
	navTimeout time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRod creates a rod capturer. An empty bin lets the launcher find or
// download a browser.
func NewRod(bin string, storage analysisSvc.FileStorage, navTimeout time.Duration, logger *slog.Logger) *Rod {
	return &Rod{
		bin:        bin,
		storage:    storage,
		navTimeout: navTimeout,
		logger:     logger,
	}
}

func (r *Rod) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return r.browser, nil
		}
		r.logger.Warn("stale browser connection, relaunching")
		_ = r.browser.Close()
		r.browser = nil
	}

	launch := launcher.New().Headless(true)
	if r.bin != "" {
		launch = launch.Bin(r.bin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	// The browser outlives the request that launched it.
	browser := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	r.browser = browser
	r.logger.Info("headless chrome started", "control_url", controlURL)
	return browser, nil
}

// Capture renders each URL in the requested viewports concurrently. A
// viewport failure is recorded in its result; only a browser that cannot be
// started fails the call.
func (r *Rod) Capture(ctx context.Context, req analysisSvc.CaptureRequest) (map[string]*analysis.ScreenshotSet, error) {
	browser, err := r.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	var viewports []Viewport
	if req.Desktop {
		viewports = append(viewports, Desktop)
	}
	if req.Mobile {
		viewports = append(viewports, Mobile)
	}

	var mu sync.Mutex
	out := make(map[string]*analysis.ScreenshotSet, len(req.URLs))
	for _, u := range req.URLs {
		out[u] = &analysis.ScreenshotSet{}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range req.URLs {
		for _, vp := range viewports {
			g.Go(func() error {
				res := r.shoot(gctx, browser, u, vp)
				mu.Lock()
				defer mu.Unlock()
				if vp.Mobile {
					out[u].Mobile = res
				} else {
					out[u].Desktop = res
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	return out, nil
}

func (r *Rod) shoot(ctx context.Context, browser *rod.Browser, url string, vp Viewport) *analysis.ScreenshotResult {
	data, err := r.render(ctx, browser, url, vp)
	if err != nil {
		r.logger.Warn("screenshot failed", "url", url, "viewport", vp.Name, "error", err)
		return &analysis.ScreenshotResult{Error: err.Error()}
	}

	obj, err := r.storage.Upload(ctx, screenshotPath(url, vp), "image/png", bytes.NewReader(data))
	if err != nil {
		return &analysis.ScreenshotResult{Error: fmt.Sprintf("upload failed: %v", err)}
	}
	return &analysis.ScreenshotResult{Success: true, ScreenshotURL: obj.URL}
}

func (r *Rod) render(ctx context.Context, browser *rod.Browser, url string, vp Viewport) ([]byte, error) {
	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.DeviceScaleFactor,
		Mobile:            vp.Mobile,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	page = page.Context(ctx)
	if err := page.Timeout(r.navTimeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.Timeout(r.navTimeout).WaitLoad(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	return page.Screenshot(true, nil)
}

// Close shuts the browser down
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

func screenshotPath(url string, vp Viewport) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("screenshots/%s/%s-%d.png", hex.EncodeToString(sum[:8]), vp.Name, time.Now().UnixMilli())
}
