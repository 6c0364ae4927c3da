package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	hclog "github.com/hashicorp/go-hclog"

	"jogtrack/internal/platform/config"
)

// New builds the application logger. The returned closer releases the log file, if any.
func New(cfg config.Config) (hclog.Logger, io.Closer, error) {
	level := hclog.LevelFromString(strings.TrimSpace(cfg.Log.Level))
	if level == hclog.NoLevel {
		return nil, nil, fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if !cfg.Log.Stderr {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
		closer = file
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "jogtrack",
		Level:      level,
		Output:     out,
		JSONFormat: cfg.Log.JSON,
	})
	return logger, closer, nil
}

// Discard is used where logs must be swallowed, such as driver subprocess chatter.
func Discard() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
