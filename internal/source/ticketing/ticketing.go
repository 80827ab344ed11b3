// Package ticketing pulls listings from a ticket marketplace whose JSON API
// only answers clients holding cookies minted by a real browser visit.
//
// A disposable headless browser opens the public listing page once; its
// cookies and user agent are then replayed on direct API calls for pages
// 1..MaxPages. The source is optional: a browser that cannot start or a
// bot challenge simply yields no events.
package ticketing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"eventcal/internal/browser"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/source"
)

// Name identifies this source in logs, metrics and merge order.
const Name = "ticketing"

// ErrBotChallenge means the site served an anti-automation response.
var ErrBotChallenge = errors.New("bot challenge detected")

// Session is a live browser holding the listing page's credentials.
type Session interface {
	Credentials() browser.Credentials
	Close()
}

// OpenFunc starts a Session on pageURL.
type OpenFunc func(ctx context.Context, pageURL string) (Session, error)

// BrowserOpener adapts a chromedp launcher to OpenFunc.
func BrowserOpener(l *browser.Launcher) OpenFunc {
	return func(ctx context.Context, pageURL string) (Session, error) {
		s, err := l.Open(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Client fetches listing pages through a browser-issued session.
type Client struct {
	cfg     config.TicketingConfig
	open    OpenFunc
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

var _ source.Source = (*Client)(nil)

// New creates a ticketing client. now may be nil (time.Now).
func New(cfg config.TicketingConfig, open OpenFunc, now func() time.Time) *Client {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 6
	}
	if now == nil {
		now = time.Now
	}
	limit := rate.Inf
	if cfg.PageInterval > 0 {
		limit = rate.Every(cfg.PageInterval)
	}
	return &Client{
		cfg:     cfg,
		open:    open,
		client:  source.NewHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(limit, 1),
		now:     now,
	}
}

func (c *Client) Name() string { return Name }

// Fetch opens a browser session, replays its credentials page by page and
// always closes the session before returning.
func (c *Client) Fetch(ctx context.Context) ([]model.Event, error) {
	if !c.cfg.Enabled || c.open == nil {
		return nil, source.ErrDisabled
	}

	sess, err := c.open(ctx, c.cfg.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("ticketing session: %w", err)
	}
	defer sess.Close()

	items, err := c.fetchPages(ctx, sess.Credentials())
	now := c.now()

	events := make([]model.Event, 0, len(items))
	for _, raw := range items {
		var ev rawEvent
		if jerr := json.Unmarshal(raw, &ev); jerr != nil {
			continue
		}
		mapped, ok := mapEvent(ev, now)
		if !ok {
			appLog.Debug("ticketing event without date dropped", "title", ev.Title)
			continue
		}
		mapped.ID = len(events) + 1
		events = append(events, mapped)
	}
	return events, err
}

type listingPage struct {
	Events    []json.RawMessage `json:"events"`
	Remaining int               `json:"remaining"`
}

func (c *Client) fetchPages(ctx context.Context, creds browser.Credentials) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for n := 1; n <= c.cfg.MaxPages; n++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return all, err
		}
		p, err := c.fetchPage(ctx, creds, n)
		if err != nil {
			return all, fmt.Errorf("ticketing page %d: %w", n, err)
		}
		all = append(all, p.Events...)

		appLog.Debug("ticketing page fetched", "page", n, "events", len(p.Events), "remaining", p.Remaining)

		if p.Remaining <= 0 || len(p.Events) == 0 {
			return all, nil
		}
	}
	appLog.Info("ticketing page cap reached", "max_pages", c.cfg.MaxPages, "items", len(all))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, creds browser.Credentials, n int) (listingPage, error) {
	u, err := url.Parse(c.cfg.APIURL)
	if err != nil {
		return listingPage{}, err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return listingPage{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.cfg.ListingURL)
	if creds.UserAgent != "" {
		req.Header.Set("User-Agent", creds.UserAgent)
	}
	if creds.Cookie != "" {
		req.Header.Set("Cookie", creds.Cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return listingPage{}, err
	}
	defer resp.Body.Close()

	if isChallenge(resp) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return listingPage{}, fmt.Errorf("%w (status %d)", ErrBotChallenge, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return listingPage{}, &source.StatusError{URL: c.cfg.APIURL, Status: resp.StatusCode}
	}

	var p listingPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return listingPage{}, fmt.Errorf("decode: %w", err)
	}
	return p, nil
}

// isChallenge recognizes the common anti-bot responses: explicit block
// statuses, Cloudflare's mitigation header, DataDome headers, or an HTML
// interstitial where JSON was requested.
func isChallenge(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	if strings.EqualFold(resp.Header.Get("Cf-Mitigated"), "challenge") {
		return true
	}
	for k := range resp.Header {
		if strings.HasPrefix(strings.ToLower(k), "x-datadome") {
			return true
		}
	}
	if resp.StatusCode/100 == 2 {
		if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mt == "text/html" {
			return true
		}
	}
	return false
}
