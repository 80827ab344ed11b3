package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"eventcal/internal/config"
	"eventcal/internal/source"
)

type scrapeStub struct {
	mu    sync.Mutex
	seen  []scrapeRequest
	pages map[string]string // url -> markdown; missing urls fail
}

func (s *scrapeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/scrape" || r.Header.Get("Authorization") != "Bearer scrape-key" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.seen = append(s.seen, req)
	s.mu.Unlock()

	md, ok := s.pages[req.URL]
	if !ok {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data": map[string]any{
			"markdown": md,
			"links":    []string{req.URL + "/tickets"},
		},
	})
}

type completionStub struct {
	reply   string
	headers http.Header
	body    map[string]any
}

func (c *completionStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}
	c.headers = r.Header.Clone()
	_ = json.NewDecoder(r.Body).Decode(&c.body)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": c.reply},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func testConfig(scrapeURL, completionURL string, pages ...string) config.ExtractConfig {
	cfg := config.DefaultConfig().Extract
	cfg.Pages = pages
	cfg.ScrapeURL = scrapeURL
	cfg.CompletionURL = completionURL
	cfg.ScrapeKey = "scrape-key"
	cfg.CompletionKey = "completion-key"
	return cfg
}

func TestFetchEndToEnd(t *testing.T) {
	scrape := &scrapeStub{pages: map[string]string{
		"https://one.example/tampa": "## Warehouse Techno\nFri Sep 12, 10pm",
	}}
	ss := httptest.NewServer(scrape)
	defer ss.Close()

	llm := &completionStub{reply: `[{"title":"Warehouse Techno","startDate":"2025-09-12","startTime":"10:00 PM","category":"nightlife","url":"https://one.example/tampa/tickets"}]`}
	ls := httptest.NewServer(llm)
	defer ls.Close()

	c := New(testConfig(ss.URL, ls.URL, "https://one.example/tampa", "https://two.example/tampa"))
	events, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Warehouse Techno" || events[0].Category != "nightlife" {
		t.Fatalf("unexpected events %+v", events)
	}

	if len(scrape.seen) != 2 {
		t.Fatalf("scraped %d pages, want 2", len(scrape.seen))
	}
	for _, req := range scrape.seen {
		if req.WaitFor != 1500 || req.Timeout != 30000 || req.OnlyMainContent || len(req.Formats) != 2 {
			t.Errorf("unexpected scrape request %+v", req)
		}
	}

	if llm.headers.Get("Authorization") != "Bearer completion-key" {
		t.Errorf("auth header = %q", llm.headers.Get("Authorization"))
	}
	if llm.headers.Get("HTTP-Referer") != "https://calendar-app.local" || llm.headers.Get("X-Title") != "Calendar-App Event Extractor" {
		t.Errorf("attribution headers missing: %v", llm.headers)
	}
	if llm.body["model"] != "x-ai/grok-4-fast:free" || llm.body["max_tokens"] != float64(2000) {
		t.Errorf("model/max_tokens = %v %v", llm.body["model"], llm.body["max_tokens"])
	}
	if temp, ok := llm.body["temperature"].(float64); !ok || temp > 1e-6 {
		t.Errorf("temperature should be sent as ~0, got %v", llm.body["temperature"])
	}

	msgs, _ := llm.body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", llm.body["messages"])
	}
	user, _ := msgs[1].(map[string]any)["content"].(string)
	if !strings.Contains(user, "# SOURCE: https://one.example/tampa") || strings.Contains(user, "# SOURCE: https://two.example/tampa") {
		t.Errorf("user prompt should only carry the page that scraped: %q", user)
	}
	if !strings.Contains(user, "https://one.example/tampa/tickets") {
		t.Errorf("links missing from prompt: %q", user)
	}
}

func TestFetchUnparsableReplyIsEmpty(t *testing.T) {
	ss := httptest.NewServer(&scrapeStub{pages: map[string]string{"https://one.example": "# events"}})
	defer ss.Close()
	ls := httptest.NewServer(&completionStub{reply: "I found these events: none"})
	defer ls.Close()

	events, err := New(testConfig(ss.URL, ls.URL, "https://one.example")).Fetch(context.Background())
	if err != nil || len(events) != 0 {
		t.Fatalf("events=%d err=%v", len(events), err)
	}
}

func TestFetchAllPagesFailSkipsCompletion(t *testing.T) {
	ss := httptest.NewServer(&scrapeStub{})
	defer ss.Close()
	llm := &completionStub{reply: "[]"}
	ls := httptest.NewServer(llm)
	defer ls.Close()

	events, err := New(testConfig(ss.URL, ls.URL, "https://one.example")).Fetch(context.Background())
	if err != nil || len(events) != 0 {
		t.Fatalf("events=%d err=%v", len(events), err)
	}
	if llm.body != nil {
		t.Error("completion should not be called without markdown")
	}
}

func TestFetchDisabledWithoutBothKeys(t *testing.T) {
	for _, drop := range []string{"scrape", "completion"} {
		cfg := testConfig("http://127.0.0.1:1", "http://127.0.0.1:1", "https://one.example")
		if drop == "scrape" {
			cfg.ScrapeKey = ""
		} else {
			cfg.CompletionKey = ""
		}
		if _, err := New(cfg).Fetch(context.Background()); !errors.Is(err, source.ErrDisabled) {
			t.Errorf("without %s key: expected ErrDisabled, got %v", drop, err)
		}
	}
}

func TestDecodeLinks(t *testing.T) {
	got := decodeLinks(json.RawMessage(`["https://a", {"url":"https://b"}, 3, ""]`))
	if len(got) != 2 || got[0] != "https://a" || got[1] != "https://b" {
		t.Fatalf("decodeLinks = %v", got)
	}
	if decodeLinks(nil) != nil || decodeLinks(json.RawMessage(`{}`)) != nil {
		t.Fatal("non-array links should decode to nil")
	}
}
