package inkpost

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(GetSlogHandler(false, &buf))
	logger.Debug("hidden")
	logger.Warn("Couldn't do it", slog.Any("err", errors.New("boom")))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("Debug record written at info level: %q", out)
	}
	if !strings.Contains(out, "Couldn't do it") || !strings.Contains(out, "boom") {
		t.Fatalf("Missing record: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("Colors written to a non-terminal: %q", out)
	}
}

func TestNewLoggerFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := NewLogger(true, dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Debug("to file", slog.Int("n", 3))

	data, err := os.ReadFile(filepath.Join(dir, "inkpost.log"))
	if err != nil {
		t.Fatalf("Log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to file"`) || !strings.Contains(string(data), `"n":3`) {
		t.Fatalf("Unexpected log file contents: %q", data)
	}
}
