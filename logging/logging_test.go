package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitJSONWithComponent(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	InitWriter(&buf, "info", "json")
	For("store").Info("opened", "table", "people")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if rec["component"] != "store" {
		t.Fatalf("component = %v, want store", rec["component"])
	}
	if rec["table"] != "people" {
		t.Fatalf("table = %v, want people", rec["table"])
	}
}

func TestLevelFilters(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	InitWriter(&buf, "warn", "text")
	For("x").Info("hidden")
	For("x").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestCapture(t *testing.T) {
	c := CaptureForTest()
	defer c.Restore()

	log := For("test")
	log.Debug("one")
	log.Warn("two things")

	if !c.Has(slog.LevelWarn, "two") {
		t.Fatal("expected warn record")
	}
	if c.Count(slog.LevelDebug) != 1 {
		t.Fatalf("debug count = %d, want 1", c.Count(slog.LevelDebug))
	}
}
