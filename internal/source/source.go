// Package source defines the contract every event source implements and
// the typed per-source outcome the aggregator collects.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"eventcal/internal/model"
)

// Source fetches and normalizes events from one upstream.
//
// Fetch is best-effort: it may return events collected before a failure
// together with the error describing that failure. Callers must keep the
// events in that case.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Event, error)
}

// Result is the outcome of one Fetch call.
type Result struct {
	Source   string
	Events   []model.Event
	Err      error
	Duration time.Duration
}

// Outcome is a short label for metrics and logs.
func (r Result) Outcome() string {
	switch {
	case r.Err == nil:
		return "ok"
	case len(r.Events) > 0:
		return "partial"
	default:
		return "failed"
	}
}

// ErrDisabled is returned by sources that are switched off by configuration
// or missing credentials.
var ErrDisabled = errors.New("source disabled")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

// NewHTTPClient returns a client tuned for small JSON API calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}
