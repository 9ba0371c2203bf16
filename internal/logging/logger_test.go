package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/02loveslollipop/eco-monitor/internal/config"
)

func TestNewLogger_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}, "watcher")

	logger.Debug("hidden")
	logger.Info("sync completed", "stations_processed", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered): %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if entry["app"] != "watcher" || entry["env"] != "prod" || entry["msg"] != "sync completed" {
		t.Errorf("entry=%v", entry)
	}
	if entry["stations_processed"] != float64(3) {
		t.Errorf("stations_processed=%v", entry["stations_processed"])
	}
}

func TestNewLogger_DevIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}, "api")

	logger.Debug("listening", "addr", ":8080")

	out := buf.String()
	if !strings.Contains(out, "listening") || !strings.Contains(out, "app=") || !strings.Contains(out, "api") {
		t.Errorf("output=%q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("dev output should not be JSON: %q", out)
	}
}
