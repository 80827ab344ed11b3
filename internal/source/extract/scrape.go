package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	appLog "eventcal/internal/log"
	"eventcal/internal/source"
)

// Document is one scraped page. A failed page keeps its URL with empty
// Markdown and Links.
type Document struct {
	URL      string
	Markdown string
	Links    []string
}

// Scraper renders pages to markdown through a hosted scrape API.
type Scraper struct {
	baseURL string
	key     string
	waitFor time.Duration
	timeout time.Duration
	client  *http.Client
}

// NewScraper creates a scrape client. timeout is the per-page render budget
// handed to the service; the HTTP client gets a little more on top.
func NewScraper(baseURL, key string, waitFor, timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		waitFor: waitFor,
		timeout: timeout,
		client:  source.NewHTTPClient(timeout + 15*time.Second),
	}
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	WaitFor         int64    `json:"waitFor"`
	Timeout         int64    `json:"timeout"`
	MaxAge          int64    `json:"maxAge"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string          `json:"markdown"`
		Links    json.RawMessage `json:"links"`
	} `json:"data"`
}

// Scrape fetches one page.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (Document, error) {
	doc := Document{URL: pageURL}

	body, err := json.Marshal(scrapeRequest{
		URL:             pageURL,
		Formats:         []string{"markdown", "links"},
		OnlyMainContent: false,
		WaitFor:         s.waitFor.Milliseconds(),
		Timeout:         s.timeout.Milliseconds(),
		MaxAge:          0,
	})
	if err != nil {
		return doc, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return doc, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return doc, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return doc, &source.StatusError{URL: s.baseURL + "/v1/scrape", Status: resp.StatusCode}
	}

	var out scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return doc, fmt.Errorf("decode scrape response: %w", err)
	}
	if !out.Success {
		return doc, fmt.Errorf("scrape %s: %s", pageURL, out.Error)
	}

	doc.Markdown = out.Data.Markdown
	doc.Links = decodeLinks(out.Data.Links)
	return doc, nil
}

// ScrapeAll fetches every page concurrently. A page that fails is logged and
// contributes an empty Document; the batch never fails as a whole.
func (s *Scraper) ScrapeAll(ctx context.Context, pages []string) []Document {
	docs := make([]Document, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, page := range pages {
		g.Go(func() error {
			doc, err := s.Scrape(gctx, page)
			if err != nil {
				appLog.Warn("scrape failed", "page", page, "error", err.Error())
			}
			docs[i] = doc
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

// decodeLinks accepts either plain strings or {url: ...} objects.
func decodeLinks(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	links := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if json.Unmarshal(it, &s) == nil {
			if s != "" {
				links = append(links, s)
			}
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if json.Unmarshal(it, &obj) == nil && obj.URL != "" {
			links = append(links, obj.URL)
		}
	}
	return links
}
