package normalize

import (
	"testing"
	"time"

	"eventcal/internal/model"
)

func TestSanitizeURL(t *testing.T) {
	for _, raw := range []string{"ftp://x", "/relative/path", "not a url", "", "https://", "javascript:alert(1)"} {
		if got, ok := SanitizeURL(raw); ok || got != "" {
			t.Errorf("SanitizeURL(%q) = %q, %v; want absent", raw, got, ok)
		}
	}

	for _, raw := range []string{"https://example.com/e", "HTTP://example.com/a?b=c"} {
		got, ok := SanitizeURL(raw)
		if !ok || got != raw {
			t.Errorf("SanitizeURL(%q) = %q, %v; want unchanged", raw, got, ok)
		}
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tech", "technology"},
		{"Tech Meetup", "technology"},
		{"BIOTECH summit", "technology"},
		{"Technology", "technology"},
		{"Live Music", "music"},
		{"Comedy Night", "comedy"},
		{"Music Festival", "music"}, // vocabulary order: music before festival
		{"Theater", "theater"},
		{"", "music"},
		{"underwater basket weaving", "music"},
	}
	for _, tt := range tests {
		if got := Category(tt.in); got != tt.want {
			t.Errorf("Category(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNYDateParts(t *testing.T) {
	// 00:30 UTC is still the previous evening in New York.
	ts := time.Date(2025, 9, 11, 0, 30, 0, 0, time.UTC)
	date, clock := NYDateParts(ts)
	if date != "2025-09-10" || clock != "8:30 PM" {
		t.Fatalf("NYDateParts = %q %q", date, clock)
	}

	date, clock = NYDateParts(time.Time{})
	if date != "" || clock != "" {
		t.Fatalf("zero instant should be empty, got %q %q", date, clock)
	}
}

func TestParseInstant(t *testing.T) {
	for _, s := range []string{"2025-09-10T23:00:00.000Z", "2025-09-10T19:00:00-04:00", "2025-09-10T23:00:00Z"} {
		ts, ok := ParseInstant(s)
		if !ok {
			t.Errorf("ParseInstant(%q) failed", s)
			continue
		}
		if got := CivilDate(ts); got != "2025-09-10" {
			t.Errorf("CivilDate(%q) = %s", s, got)
		}
	}
	if _, ok := ParseInstant("next tuesday"); ok {
		t.Error("expected garbage timestamp to fail")
	}
}

func TestParseDate(t *testing.T) {
	if d, ok := ParseDate("2025-10-03T19:00:00"); !ok || d != "2025-10-03" {
		t.Errorf("ParseDate prefix = %q %v", d, ok)
	}
	for _, s := range []string{"", "2025-13-01", "Oct 3", "2025/10/03"} {
		if _, ok := ParseDate(s); ok {
			t.Errorf("ParseDate(%q) should fail", s)
		}
	}
}

func TestDedupeFirstWins(t *testing.T) {
	in := []model.Event{
		{Title: "Jazz Night", Date: "2025-09-10", Description: "first"},
		{Title: "Other", Date: "2025-09-10"},
		{Title: "JAZZ NIGHT", Date: "2025-09-10", Description: "second"},
		{Title: "Jazz Night", Date: "2025-09-11"},
	}
	out := Dedupe(in)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Description != "first" {
		t.Errorf("expected first occurrence to survive, got %q", out[0].Description)
	}
	if out[2].Date != "2025-09-11" {
		t.Errorf("different date must not be deduped: %+v", out[2])
	}
}

func TestDropUndatedAndRenumber(t *testing.T) {
	in := []model.Event{{Title: "a", Date: "2025-01-01"}, {Title: "b"}, {Title: "c", Date: "2025-01-02"}}
	out := DropUndated(in)
	Renumber(out)
	if len(out) != 2 || out[0].ID != 1 || out[1].ID != 2 || out[1].Title != "c" {
		t.Fatalf("unexpected %+v", out)
	}
}

func TestTitleAndLocationFallbacks(t *testing.T) {
	if Title("  ") != model.UntitledEvent {
		t.Error("blank title should use placeholder")
	}
	if got := Location("", " ", "The Ritz"); got != "The Ritz" {
		t.Errorf("Location = %q", got)
	}
	if got := Location(); got != model.DefaultLocation {
		t.Errorf("Location() = %q", got)
	}
}
