// Package render contains renderers that execute JavaScript via a headless
// browser before handing the page back to the spider.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/crawl"
)

// ErrNotConfigured indicates rendering is unavailable in the current build.
var ErrNotConfigured = errors.New("renderer not configured")

// Noop implements crawl.Renderer for sources that never need JS execution.
type Noop struct{}

// NewNoop creates a Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render always reports that rendering is unavailable.
func (*Noop) Render(_ context.Context, _ crawl.Request) (*crawl.Response, error) {
	return nil, ErrNotConfigured
}

// Close is a no-op.
func (*Noop) Close() {}

// Config controls the chromedp renderer.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// Chromedp renders pages with a shared headless Chrome session. The browser
// allocator is started lazily on the first Render call; Close releases it.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a chromedp-backed renderer. No browser process is
// spawned until the first Render call.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	return &Chromedp{cfg: cfg, logger: logger}
}

// Close cancels the allocator context, terminating the browser process.
// Safe to call before any Render and more than once.
func (r *Chromedp) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allocCancel != nil {
		r.allocCancel()
		r.allocCancel = nil
		r.allocator = nil
	}
}

// Render opens one page in the shared browser, navigates until the document
// is ready, and returns the rendered HTML with a synthetic success status.
// Navigation failures are returned as errors, never propagated as panics.
func (r *Chromedp) Render(ctx context.Context, req crawl.Request) (*crawl.Response, error) {
	allocator := r.ensureAllocator()

	taskCtx, taskCancel := chromedp.NewContext(allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	// Honor the caller's deadline on top of the navigation timeout.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	start := time.Now()
	var html string
	actions := []chromedp.Action{
		r.networkSetupAction(req.Headers),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		r.logger.Warn("render failed", zap.String("url", req.URL), zap.Error(err))
		return nil, fmt.Errorf("render %s: %w", req.URL, err)
	}

	return &crawl.Response{
		URL:      req.URL,
		Status:   http.StatusOK,
		Body:     []byte(html),
		Headers:  map[string]string{},
		Request:  req,
		Elapsed:  time.Since(start),
		Metadata: map[string]any{"rendered": true},
	}, nil
}

func (r *Chromedp) ensureAllocator() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allocator != nil {
		return r.allocator
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	r.allocator, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	r.logger.Info("started headless browser allocator")
	return r.allocator
}

func (r *Chromedp) networkSetupAction(headers map[string]string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			extra := network.Headers{}
			for k, v := range headers {
				extra[k] = v
			}
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}
