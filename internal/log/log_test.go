package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestInfoWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, "json", "info")
	defer Init(nil, "", "")

	Info("source fetched", "source", "marketplace", "count", 4)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if line["message"] != "source fetched" {
		t.Errorf("message = %v", line["message"])
	}
	if line["source"] != "marketplace" {
		t.Errorf("source = %v", line["source"])
	}
	if line["count"] != float64(4) {
		t.Errorf("count = %v", line["count"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, "json", "error")
	defer Init(nil, "", "")

	Debug("hidden")
	Info("hidden too")
	Error("visible", errors.New("boom"), "odd")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, `"error":"boom"`) {
		t.Fatalf("expected error field, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		" error ": LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
