package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "anisync.log")
	var console bytes.Buffer

	logger, closer, err := New(Options{App: "anisync-test", Level: "debug", File: path, Console: true, ConsoleOut: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	syncLogger := Component(logger, "sync")
	syncLogger.Debug().Int("pushed", 2).Msg("push pass done")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &line); err != nil {
		t.Fatalf("log line is not JSON: %q", b)
	}
	if line["app"] != "anisync-test" || line["component"] != "sync" || line["message"] != "push pass done" {
		t.Fatalf("fields: %v", line)
	}
	if !strings.Contains(console.String(), "push pass done") {
		t.Fatalf("console output: %q", console.String())
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := New(Options{Level: "warn", Console: true, ConsoleOut: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "shown") {
		t.Fatalf("console output: %q", console.String())
	}
}
