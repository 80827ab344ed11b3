package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "eventcal/internal/log"
)

// Default session parameters.
const (
	DefaultWidth      = 1366
	DefaultHeight     = 900
	DefaultTimeoutSec = 45
	DefaultRenderWait = 3 * time.Second
)

// ErrUnavailable wraps every failure to start or drive the browser.
var ErrUnavailable = errors.New("browser unavailable")

// Options defines parameters for a Chromium session.
type Options struct {
	// ExecPath optionally points at a Chromium/Chrome binary. Empty uses
	// chromedp's lookup.
	ExecPath string

	// Width and Height are the viewport dimensions in pixels.
	Width  int
	Height int

	// RenderWait is the fixed delay after navigation so anti-bot scripts
	// can set their cookies.
	RenderWait time.Duration

	// Timeout bounds the whole session, from launch to Close.
	Timeout time.Duration
}

// Credentials are what a listing page hands out to a real visitor.
type Credentials struct {
	Cookie    string // ready-to-send Cookie header value
	UserAgent string
}

// Session is one disposable browser with its own throwaway profile.
// Close kills the browser process and removes the profile directory; it is
// safe to call more than once.
type Session struct {
	creds  Credentials
	cancel func()
}

// Credentials returns the cookies and user agent captured at Open.
func (s *Session) Credentials() Credentials {
	return s.creds
}

// Close releases the browser process.
func (s *Session) Close() {
	if s != nil && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Launcher opens sessions with fixed Options.
type Launcher struct {
	opts Options
}

// NewLauncher applies defaults to opts.
func NewLauncher(opts Options) *Launcher {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.RenderWait <= 0 {
		opts.RenderWait = DefaultRenderWait
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return &Launcher{opts: opts}
}

// Open launches a headless Chromium via chromedp, navigates to pageURL,
// waits for the page to settle and reads back the cookies and the
// browser's real user agent.
//
// The browser stays alive until Session.Close so that callers may keep the
// cookie jar warm while they replay requests. On error every resource is
// already released.
func (l *Launcher) Open(parentCtx context.Context, pageURL string) (*Session, error) {
	if pageURL == "" {
		return nil, fmt.Errorf("%w: page URL is required", ErrUnavailable)
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.WindowSize(l.opts.Width, l.opts.Height),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	// Apply timeout to the entire session.
	timeoutCtx, timeoutCancel := context.WithTimeout(parentCtx, l.opts.Timeout)
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, allocOpts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)

	release := func() {
		ctxCancel()
		allocCancel()
		timeoutCancel()
	}

	var (
		ua      string
		cookies []*network.Cookie
	)
	tasks := chromedp.Tasks{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Fixed settle time for challenge scripts and consent banners.
		chromedp.Sleep(l.opts.RenderWait),
		chromedp.Evaluate(`navigator.userAgent`, &ua),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	}

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		release()
		return nil, fmt.Errorf("%w: chromedp run failed: %v", ErrUnavailable, err)
	}

	appLog.Info("browser session ready",
		"page", pageURL,
		"cookies", len(cookies),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)

	return &Session{
		creds: Credentials{
			Cookie:    CookieHeader(cookies),
			UserAgent: ua,
		},
		cancel: release,
	}, nil
}

// CookieHeader renders cookies as a Cookie request header value.
func CookieHeader(cookies []*network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
