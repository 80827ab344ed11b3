// Package marketplace queries the cursor-paginated marketplace search API.
//
// The API takes its whole query as a JSON document in the "input" query
// parameter. The first request carries no cursor; every following request
// replays the server's nextCursor verbatim until the server stops sending
// one. MaxPages only bounds runaway pagination.
package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/source"
)

// Name identifies this source in logs, metrics and merge order.
const Name = "marketplace"

// Client fetches marketplace events for one configured city.
type Client struct {
	cfg     config.MarketplaceConfig
	client  *http.Client
	limiter *rate.Limiter
}

var _ source.Source = (*Client)(nil)

// New creates a marketplace client. cfg is expected to be normalized.
func New(cfg config.MarketplaceConfig) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 6
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	limit := rate.Inf
	if cfg.PageInterval > 0 {
		limit = rate.Every(cfg.PageInterval)
	}
	return &Client{
		cfg:     cfg,
		client:  source.NewHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *Client) Name() string { return Name }

// Fetch walks the cursor chain and maps every collected item. A failing
// page ends pagination; events from earlier pages are still returned.
func (c *Client) Fetch(ctx context.Context) ([]model.Event, error) {
	if !c.cfg.Enabled {
		return nil, source.ErrDisabled
	}
	items, err := c.fetchPages(ctx)
	events := mapEvents(items, c.cfg.EventBaseURL)
	appLog.Debug("marketplace items mapped", "items", len(items), "events", len(events))
	return events, err
}

// searchLocation mirrors the API's custom location filter.
type searchLocation struct {
	Type     string  `json:"type"`
	Location string  `json:"location"`
	Lat      float64 `json:"lat"`
	Long     float64 `json:"long"`
}

type searchInput struct {
	Sort             string          `json:"sort"`
	When             string          `json:"when"`
	Search           string          `json:"search"`
	Location         searchLocation  `json:"location"`
	SecondaryFilters []string        `json:"secondaryFilters"`
	Where            string          `json:"where"`
	Coordinates      [2]float64      `json:"coordinates"`
	Limit            int             `json:"limit"`
	ClientTimezone   string          `json:"clientTimezone"`
	Cursor           json.RawMessage `json:"cursor,omitempty"`
}

// page is one decoded response. NextCursor is kept opaque.
type page struct {
	Events     []json.RawMessage
	NextCursor json.RawMessage
}

func (c *Client) fetchPages(ctx context.Context) ([]json.RawMessage, error) {
	var (
		all    []json.RawMessage
		cursor json.RawMessage
	)
	for n := 1; n <= c.cfg.MaxPages; n++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return all, err
		}

		p, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return all, fmt.Errorf("marketplace page %d: %w", n, err)
		}
		all = append(all, p.Events...)

		appLog.Debug("marketplace page fetched", "page", n, "events", len(p.Events), "has_cursor", hasCursor(p.NextCursor))

		if len(p.Events) == 0 || !hasCursor(p.NextCursor) {
			return all, nil
		}
		cursor = p.NextCursor
	}
	appLog.Info("marketplace page cap reached", "max_pages", c.cfg.MaxPages, "items", len(all))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, cursor json.RawMessage) (page, error) {
	reqURL, err := c.pageURL(cursor)
	if err != nil {
		return page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return page{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return page{}, &source.StatusError{URL: c.cfg.BaseURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return page{}, err
	}
	appLog.Debug("marketplace response", "status", resp.StatusCode, "bytes", len(body), "latency", time.Since(start))

	return decodePage(body)
}

func (c *Client) pageURL(cursor json.RawMessage) (string, error) {
	in := searchInput{
		Sort:   c.cfg.Sort,
		When:   c.cfg.When,
		Search: "",
		Location: searchLocation{
			Type:     "custom",
			Location: c.cfg.City,
			Lat:      c.cfg.Latitude,
			Long:     c.cfg.Longitude,
		},
		SecondaryFilters: []string{},
		Where:            c.cfg.City,
		Coordinates:      [2]float64{c.cfg.Longitude, c.cfg.Latitude},
		Limit:            c.cfg.PageSize,
		ClientTimezone:   "America/New_York",
		Cursor:           cursor,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("input", string(raw))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// envelope accepts both the plain tRPC shape ({result:{data:{...}}}) and the
// superjson-wrapped one ({result:{data:{json:{...}}}}).
type envelope struct {
	Result struct {
		Data struct {
			pageData
			JSON *pageData `json:"json"`
		} `json:"data"`
	} `json:"result"`
}

type pageData struct {
	Events     []json.RawMessage `json:"events"`
	NextCursor json.RawMessage   `json:"nextCursor"`
}

func decodePage(body []byte) (page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return page{}, fmt.Errorf("decode: %w", err)
	}
	d := env.Result.Data.pageData
	if j := env.Result.Data.JSON; j != nil && len(d.Events) == 0 {
		d = *j
	}
	return page{Events: d.Events, NextCursor: d.NextCursor}, nil
}

// hasCursor treats missing, null and falsy JSON scalars as "no next page".
func hasCursor(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "0", `""`, "false":
		return false
	}
	return true
}
