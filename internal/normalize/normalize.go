// Package normalize holds the pure helpers shared by every event source:
// URL sanitizing, category mapping, civil date conversion and dedup.
package normalize

import (
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York must resolve on minimal images

	"eventcal/internal/model"
)

// Zone is the civil calendar all event dates are expressed in.
var Zone = mustZone("America/New_York")

func mustZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("normalize: load " + name + ": " + err.Error())
	}
	return loc
}

// SanitizeURL returns raw unchanged when it is an absolute http(s) URL with a
// host. Everything else (relative paths, other schemes, garbage) is absent.
func SanitizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return raw, true
}

// URL is SanitizeURL collapsed to the empty string for absent values.
func URL(raw string) string {
	u, _ := SanitizeURL(raw)
	return u
}

// categoryNeedles maps each vocabulary tag to the substring that selects it.
var categoryNeedles = map[model.Category]string{
	model.CategoryTechnology: "tech",
}

// Category maps a free-form category onto the closed vocabulary. The first
// tag (in model.Categories order) whose needle occurs in raw wins.
func Category(raw string) string {
	c := strings.ToLower(raw)
	if strings.TrimSpace(c) == "" {
		return string(model.DefaultCategory)
	}
	for _, tag := range model.Categories {
		needle, ok := categoryNeedles[tag]
		if !ok {
			needle = string(tag)
		}
		if strings.Contains(c, needle) {
			return string(tag)
		}
	}
	return string(model.DefaultCategory)
}

// Title trims raw and falls back to the placeholder title.
func Title(raw string) string {
	if t := strings.TrimSpace(raw); t != "" {
		return t
	}
	return model.UntitledEvent
}

// Location returns the first non-blank candidate, else the default city.
func Location(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return model.DefaultLocation
}

// CivilDate formats t as a calendar date in Zone.
func CivilDate(t time.Time) string {
	return t.In(Zone).Format(model.DateLayout)
}

// NYDateParts converts an instant into the Zone calendar date and 12-hour
// clock time. The zero instant yields empty strings.
func NYDateParts(t time.Time) (date, clock string) {
	if t.IsZero() {
		return "", ""
	}
	local := t.In(Zone)
	return local.Format(model.DateLayout), local.Format(model.TimeLayout)
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
}

// ParseInstant parses the timestamp shapes the sources emit.
func ParseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate validates a YYYY-MM-DD prefix of s and returns it.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(model.DateLayout) {
		return "", false
	}
	s = s[:len(model.DateLayout)]
	if _, err := time.ParseInLocation(model.DateLayout, s, Zone); err != nil {
		return "", false
	}
	return s, true
}

// DedupKey is lower(title) + "|" + date.
func DedupKey(ev model.Event) string {
	return strings.ToLower(ev.Title) + "|" + ev.Date
}

// Dedupe keeps the first event for every DedupKey, preserving order.
func Dedupe(events []model.Event) []model.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		key := DedupKey(ev)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// DropUndated removes events with an empty date.
func DropUndated(events []model.Event) []model.Event {
	out := events[:0:0]
	for _, ev := range events {
		if ev.Date != "" {
			out = append(out, ev)
		}
	}
	return out
}

// Renumber assigns IDs 1..n in slice order.
func Renumber(events []model.Event) {
	for i := range events {
		events[i].ID = i + 1
	}
}
