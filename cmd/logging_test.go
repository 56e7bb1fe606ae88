package cmd

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
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tc := range tests {
		got, err := parseLevel(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewLogHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	h, err := newLogHandler(&buf, "info", "json")
	if err != nil {
		t.Fatalf("newLogHandler: %v", err)
	}
	logger := slog.New(h)
	logger.Debug("hidden")
	logger.Info("sync finished", "created", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "sync finished" || rec["created"] != float64(2) {
		t.Errorf("record: %v", rec)
	}
}

func TestNewLogHandlerText(t *testing.T) {
	var buf bytes.Buffer
	h, err := newLogHandler(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("newLogHandler: %v", err)
	}
	logger := slog.New(h)
	logger.Info("hidden")
	logger.Warn("persist sync log", "err", "disk full")

	if got := buf.String(); strings.Contains(got, "hidden") || !strings.Contains(got, `err="disk full"`) {
		t.Errorf("text output = %q", got)
	}
	if _, err := newLogHandler(&buf, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
