package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// captureOutput redirects log output to a buffer for the duration of f.
func captureOutput(f func()) string {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	f()
	return buf.String()
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		name     string
		levelStr string
		expected Level
	}{
		{"debug level", "DEBUG", DEBUG},
		{"info level", "INFO", INFO},
		{"warn level", "WARN", WARN},
		{"error level", "ERROR", ERROR},
		{"fatal level", "FATAL", FATAL},
		{"lowercase debug", "debug", DEBUG},
		{"mixed case warn", "WaRn", WARN},
		{"unknown level", "bogus", INFO},
		{"empty string", "", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevelFromString(tt.levelStr); got != tt.expected {
				t.Errorf("LevelFromString(%q) = %v, want %v", tt.levelStr, got, tt.expected)
			}
		})
	}
}

func TestIsLevelEnabled(t *testing.T) {
	defer SetLevel(INFO)

	SetLevel(WARN)
	if IsLevelEnabled(DEBUG) {
		t.Errorf("DEBUG should not be enabled at WARN level")
	}
	if IsLevelEnabled(INFO) {
		t.Errorf("INFO should not be enabled at WARN level")
	}
	if !IsLevelEnabled(WARN) {
		t.Errorf("WARN should be enabled at WARN level")
	}
	if !IsLevelEnabled(ERROR) {
		t.Errorf("ERROR should be enabled at WARN level")
	}
}

func TestLevelFiltering(t *testing.T) {
	defer SetLevel(INFO)

	SetLevel(INFO)
	out := captureOutput(func() {
		Debug("this is a debug message")
		Info("this is an info message")
	})
	if strings.Contains(out, "debug message") {
		t.Errorf("debug message should have been filtered at INFO level, got: %q", out)
	}
	if !strings.Contains(out, "[INFO] this is an info message") {
		t.Errorf("info message missing from output: %q", out)
	}
}

func TestFormatting(t *testing.T) {
	defer SetLevel(INFO)

	SetLevel(DEBUG)
	out := captureOutput(func() {
		Warn("request from %s rejected after %d attempts", "127.0.0.1:9000", 3)
	})
	if !strings.Contains(out, "[WARN] request from 127.0.0.1:9000 rejected after 3 attempts") {
		t.Errorf("unexpected output: %q", out)
	}
}
