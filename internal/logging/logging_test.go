package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Expected a non-nil default logger")
	}
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("Expected default logger to be disabled")
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	Logger().Info("reslice finished", "planes", 3)
	if !strings.Contains(buf.String(), "planes=3") {
		t.Errorf("Expected log output to contain planes=3, got %q", buf.String())
	}
}

func TestInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	cleanup, err := Init(Options{Level: slog.LevelError, Dir: dir})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Logger().Debug("debug record", "step", 1)
	cleanup()
	defer SetLogger(nil)

	data, err := os.ReadFile(filepath.Join(dir, "dynreslice.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "debug record") {
		t.Errorf("Expected debug record in log file, got %q", string(data))
	}
}
