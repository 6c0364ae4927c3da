package logging_test

import (
	"os"
	"strings"
	"testing"

	"jogtrack/internal/platform/config"
	"jogtrack/internal/platform/logging"
)

func TestNewWritesToLogFile(t *testing.T) {
	t.Parallel()
	cfg, err := config.New(t.TempDir())
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	logger, closer, err := logging.New(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Named("tracking").Info("session started", "session_id", "s-1")
	if err := closer.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	raw, err := os.ReadFile(cfg.LogPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), "session started") || !strings.Contains(string(raw), "session_id=s-1") {
		t.Fatalf("log line missing fields: %s", raw)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()
	cfg, err := config.New(t.TempDir())
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	cfg.Log.Level = "chatty"
	if _, _, err := logging.New(cfg); err == nil {
		t.Fatalf("expected unknown level error")
	}
}
