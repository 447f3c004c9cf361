package common

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{input: "debug", expected: slog.LevelDebug},
		{input: "INFO", expected: slog.LevelInfo},
		{input: " warn ", expected: slog.LevelWarn},
		{input: "error", expected: slog.LevelError},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if level != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestNewLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn, true)

	logger.Info("hidden message")
	logger.Warn("visible message", "entry_id", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Error("Expected info record to be filtered")
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "entry_id=abc") {
		t.Errorf("Expected warn record with attributes, got %q", out)
	}
}
