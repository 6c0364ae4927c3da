package out

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"jogtrack/internal/modules/tracking/domain"
	trackingout "jogtrack/internal/modules/tracking/port/out"
	apperrors "jogtrack/internal/platform/errors"
)

type FileSnapshotStore struct {
	path    string
	history trackingout.HistoryLog
	notes   trackingout.SessionNoteStore
}

func NewFileSnapshotStore(path string, history trackingout.HistoryLog, notes trackingout.SessionNoteStore) trackingout.SnapshotStore {
	return &FileSnapshotStore{path: path, history: history, notes: notes}
}

// Save replaces the current slot atomically: a crash leaves either the old or the new
// snapshot on disk, never a torn file.
func (s *FileSnapshotStore) Save(_ context.Context, snapshot domain.Snapshot) error {
	if snapshot.SessionID == "" {
		return fmt.Errorf("%w: snapshot without session id", apperrors.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".current-session-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) Load(_ context.Context) (domain.Snapshot, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Snapshot{}, apperrors.ErrNoSnapshot
		}
		return domain.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	snapshot := domain.Snapshot{}
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snapshot.SessionID == "" {
		return domain.Snapshot{}, apperrors.ErrNoSnapshot
	}
	if snapshot.SchemaVersion > domain.SchemaVersion {
		return domain.Snapshot{}, fmt.Errorf("snapshot schema version %d is newer than supported %d", snapshot.SchemaVersion, domain.SchemaVersion)
	}
	return snapshot, nil
}

// Archive appends the session to the history log unless it is already there, renders
// its note and clears the slot if the slot still holds this session.
func (s *FileSnapshotStore) Archive(ctx context.Context, snapshot domain.Snapshot) error {
	if snapshot.State != domain.StateStopped {
		return fmt.Errorf("%w: only stopped sessions can be archived, got %s", apperrors.ErrInvalidInput, snapshot.State)
	}
	exists, err := s.history.Contains(ctx, snapshot.SessionID)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.history.Append(ctx, snapshot); err != nil {
			return err
		}
	}
	if s.notes != nil {
		if _, err := s.notes.Write(ctx, snapshot); err != nil {
			return err
		}
	}
	current, err := s.Load(ctx)
	switch {
	case errors.Is(err, apperrors.ErrNoSnapshot):
		return nil
	case err != nil:
		return err
	case current.SessionID != snapshot.SessionID:
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
