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
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo}, // unknown falls back to info
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Setup("info", "json", &buf)

	slog.Info("snapshot written", "blobs", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output not JSON: %v; got %s", err, buf.String())
	}
	if entry["msg"] != "snapshot written" {
		t.Errorf("msg = %v, want snapshot written", entry["msg"])
	}
	if entry["blobs"] != float64(3) {
		t.Errorf("blobs = %v, want 3", entry["blobs"])
	}
}

func TestSetupLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Setup("warn", "text", &buf)

	slog.Debug("dropped")
	slog.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("debug record not filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestSetupDebugRecordsSource(t *testing.T) {
	var buf bytes.Buffer
	Setup("debug", "text", &buf)

	slog.Debug("traced")

	if !strings.Contains(buf.String(), "logging_test.go") {
		t.Errorf("debug record missing source location: %s", buf.String())
	}
}
