package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONLogFile(t *testing.T) {
	dir := t.TempDir()

	logger, closeFn, err := New(dir, slog.LevelInfo)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closeFn()

	logger.Info("stream started", slog.String("socket_id", "abc123"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log file, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty log file")
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, closeFn, err := New(dir, slog.LevelWarn)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closeFn()

	logger.Debug("should be dropped")
	logger.Warn("should be kept")

	entries, _ := os.ReadDir(dir)
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if len(data) == 0 {
		t.Fatalf("expected warn-level record to be written")
	}
	if strings.Contains(string(data), "should be dropped") {
		t.Fatalf("expected debug-level record to be filtered out at warn level")
	}
}
