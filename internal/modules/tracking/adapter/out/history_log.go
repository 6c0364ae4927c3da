package out

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"

	"jogtrack/internal/modules/tracking/domain"
	trackingout "jogtrack/internal/modules/tracking/port/out"
)

// FileHistoryLog is the append-only JSONL record of archived sessions, ordered by
// stop time. It is the source of truth the SQLite index is rebuilt from. A line torn by
// a crash mid-append is skipped on read and fenced off by the next append.
type FileHistoryLog struct {
	path   string
	logger hclog.Logger
	mu     sync.Mutex
}

func NewFileHistoryLog(path string, logger hclog.Logger) trackingout.HistoryLog {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FileHistoryLog{path: path, logger: logger.Named("history")}
}

func (s *FileHistoryLog) Append(_ context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer file.Close()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	torn, err := missingNewline(file)
	if err != nil {
		return err
	}
	if torn {
		payload = append([]byte{'\n'}, payload...)
	}
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync history: %w", err)
	}
	return nil
}

func (s *FileHistoryLog) Contains(ctx context.Context, sessionID string) (bool, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *FileHistoryLog) List(_ context.Context) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer file.Close()

	out := []domain.Snapshot{}
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entry := domain.Snapshot{}
		if err := json.Unmarshal(line, &entry); err != nil {
			s.logger.Warn("skipping unreadable history line", "line", lineNo, "error", err)
			continue
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return out, nil
}

// missingNewline reports whether the file is non-empty and does not end in a newline.
func missingNewline(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat history: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read history tail: %w", err)
	}
	return last[0] != '\n', nil
}
