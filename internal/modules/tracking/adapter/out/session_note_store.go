package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jogtrack/internal/modules/tracking/domain"
	trackingout "jogtrack/internal/modules/tracking/port/out"
	"jogtrack/internal/platform/markdown"
)

// noteMeta is the frontmatter of a session note.
type noteMeta struct {
	SchemaVersion       int     `yaml:"schema_version"`
	ID                  string  `yaml:"id"`
	StartedAt           string  `yaml:"started_at"`
	StoppedAt           string  `yaml:"stopped_at"`
	TotalSteps          int64   `yaml:"total_steps"`
	TotalDistanceMeters float64 `yaml:"total_distance_meters"`
	DurationSeconds     int64   `yaml:"duration_seconds"`
	ActiveSeconds       int64   `yaml:"active_seconds"`
	AverageSpeedMPS     float64 `yaml:"average_speed_mps"`
}

type VaultSessionNoteStore struct {
	notesDir string
}

func NewVaultSessionNoteStore(notesDir string) trackingout.SessionNoteStore {
	return &VaultSessionNoteStore{notesDir: notesDir}
}

// Write renders the session note. The path depends only on the session, so writing the
// same session again overwrites its note.
func (s *VaultSessionNoteStore) Write(_ context.Context, snapshot domain.Snapshot) (string, error) {
	date := snapshot.StartedAt
	dir := filepath.Join(s.notesDir, date.Format("2006"), date.Format("01"), date.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.md", date.Format("150405"), shortID(snapshot.SessionID)))

	summary := snapshot.Summary()
	meta := noteMeta{
		SchemaVersion:       domain.SchemaVersion,
		ID:                  snapshot.SessionID,
		StartedAt:           snapshot.StartedAt.Format(time.RFC3339),
		StoppedAt:           snapshot.StoppedAt.Format(time.RFC3339),
		TotalSteps:          summary.TotalSteps,
		TotalDistanceMeters: round2(summary.TotalDistanceMeters),
		DurationSeconds:     summary.DurationSeconds,
		ActiveSeconds:       summary.ActiveSeconds,
		AverageSpeedMPS:     round2(summary.AverageSpeedMPS),
	}
	body := fmt.Sprintf("# Jog %s\n\n- Steps: %d\n- Distance: %.2f km\n- Duration: %s\n- Moving time: %s\n- Average speed: %.2f m/s\n",
		snapshot.StartedAt.Format("2006-01-02 15:04"),
		summary.TotalSteps,
		summary.TotalDistanceMeters/1000,
		time.Duration(summary.DurationSeconds)*time.Second,
		time.Duration(summary.ActiveSeconds)*time.Second,
		summary.AverageSpeedMPS,
	)
	rendered, err := markdown.Render(meta, body)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return "", fmt.Errorf("write session note: %w", err)
	}
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
