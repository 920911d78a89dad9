package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"WARNING", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"VERBOSE", slog.LevelInfo, true},
	}

	for _, tc := range testCases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log, shutdown, err := New(context.Background(), Config{Level: "DEBUG"}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer shutdown(context.Background())

	log.Info("rule fired", "rule_id", "r1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["msg"] != "rule fired" || line["rule_id"] != "r1" {
		t.Errorf("log line = %v", line)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(context.Background(), Config{Level: "ERROR"}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("INFO should be filtered at ERROR level, got %s", buf.String())
	}

	log.Error("kept")
	if buf.Len() == 0 {
		t.Error("ERROR should pass at ERROR level")
	}
}
