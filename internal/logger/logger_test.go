package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"targetvision/internal/config"
)

func TestNew_WritesLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("started %d", 1)
	l.Warning("slow frame")
	l.Error("capture failed: %v", os.ErrClosed)

	out := buf.String()
	for _, want := range []string{"INFO", "started 1", "WARNING", "slow frame", "ERROR", "file already closed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("Expected caller file in output, got:\n%s", out)
	}
}

func TestNewLogger_FilesAndCleanLogs(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir})
	defer l.Close()

	l.Warning("exposure too low")

	data, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	if err != nil {
		t.Fatalf("Failed to read warning.log: %v", err)
	}
	if !strings.Contains(string(data), "exposure too low") {
		t.Errorf("warning.log missing entry: %q", data)
	}

	l.CleanLogs("warning.log")

	data, err = os.ReadFile(filepath.Join(dir, "warning.log"))
	if err != nil {
		t.Fatalf("Failed to read warning.log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty warning.log after clean, got %q", data)
	}
}

func TestCleanLogs_NoDirectoryIsNoop(t *testing.T) {
	NewNop().CleanLogs("info.log")
}
