package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConsoleWriter_PlainLabels(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(consoleWriter(&buf, true))
	logger.Warn().Msg("fallback used")

	out := buf.String()
	if !strings.Contains(out, "WRN") || strings.Contains(out, "\033[") {
		t.Errorf("unexpected console line %q", out)
	}
}

func TestLogFetch_FallbackIsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	LogFetch(logger, "NIFTY", "fallback", 25000, 10*time.Millisecond, "all sources failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["level"] != "warn" || entry["symbol"] != "NIFTY" || entry["diagnostic"] != "all sources failed" {
		t.Errorf("entry = %v", entry)
	}
}

func TestLogSourceCall(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	LogSourceCall(logger, "yahoo", "TCS", time.Second, errors.New("timeout"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["source"] != "yahoo" || entry["error"] != "timeout" || entry["message"] != "Source failed" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewLoggerWithConfig_FileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "arbmon.log")
	logger := NewLoggerWithConfig(LogConfig{Level: "debug", File: true, FilePath: path, MaxSize: 1})
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v", logger.GetLevel())
	}
	logger.Info().Msg("hello")
}
