// Package extract is the optional source that scrapes event listing pages
// to markdown and asks a hosted chat-completion model to pull structured
// events out of them.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/source"
)

// Name identifies this source in logs, metrics and merge order.
const Name = "extract"

// Completer is the slice of the OpenAI client this source needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client runs the scrape then extract pipeline.
type Client struct {
	cfg     config.ExtractConfig
	scraper *Scraper
	llm     Completer
}

var _ source.Source = (*Client)(nil)

// New wires the scrape service and an OpenAI-compatible completion client
// from cfg. The returned client is disabled when either key is missing.
func New(cfg config.ExtractConfig) *Client {
	c := &Client{cfg: cfg}
	if !cfg.Enabled() {
		return c
	}
	c.scraper = NewScraper(cfg.ScrapeURL, cfg.ScrapeKey, cfg.ScrapeWaitFor, cfg.ScrapeTimeout)

	oc := openai.DefaultConfig(cfg.CompletionKey)
	if cfg.CompletionURL != "" {
		oc.BaseURL = cfg.CompletionURL
	}
	hc := source.NewHTTPClient(cfg.Timeout)
	hc.Transport = &headerTransport{
		base: hc.Transport,
		headers: map[string]string{
			"HTTP-Referer": cfg.Referer,
			"X-Title":      cfg.AppTitle,
		},
	}
	oc.HTTPClient = hc
	c.llm = openai.NewClientWithConfig(oc)
	return c
}

// NewWithCompleter is New with an injected completion client.
func NewWithCompleter(cfg config.ExtractConfig, llm Completer) *Client {
	c := New(cfg)
	if c.scraper != nil {
		c.llm = llm
	}
	return c
}

func (c *Client) Name() string { return Name }

// Fetch scrapes every configured page, sends the combined markdown to the
// model and parses its reply. It never fails for a bad page or an
// unparsable reply; those simply contribute nothing.
func (c *Client) Fetch(ctx context.Context) ([]model.Event, error) {
	if c.scraper == nil || c.llm == nil {
		return nil, source.ErrDisabled
	}

	docs := c.scraper.ScrapeAll(ctx, c.cfg.Pages)
	markdown := CombineMarkdown(docs)
	if markdown == "" {
		appLog.Info("extract: no markdown scraped", "pages", len(c.cfg.Pages))
		return nil, nil
	}

	content, err := c.complete(ctx, UserPrompt(markdown, CombineLinks(docs), c.cfg.MarkdownBudget, c.cfg.LinksBudget))
	if err != nil {
		return nil, err
	}

	events := ParseReply(content)
	appLog.Debug("extract: reply parsed", "chars", len(content), "events", len(events))
	return events, nil
}

func (c *Client) complete(ctx context.Context, user string) (string, error) {
	start := time.Now()
	resp, err := c.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		// A literal 0 is dropped by omitempty; this is the library's
		// documented way to request greedy decoding.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("completion: status %d: %w", apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion: no choices returned")
	}

	appLog.Info("extract: completion done",
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return resp.Choices[0].Message.Content, nil
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
