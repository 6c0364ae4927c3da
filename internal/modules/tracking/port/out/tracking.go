package out

import (
	"context"

	"jogtrack/internal/modules/tracking/domain"
)

// SnapshotStore owns the single current-session slot.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot domain.Snapshot) error
	// Load returns apperrors.ErrNoSnapshot when the slot is empty.
	Load(ctx context.Context) (domain.Snapshot, error)
	// Archive moves a stopped snapshot into history. Archiving the same session twice
	// must not duplicate it.
	Archive(ctx context.Context, snapshot domain.Snapshot) error
}

type HistoryLog interface {
	Append(ctx context.Context, snapshot domain.Snapshot) error
	Contains(ctx context.Context, sessionID string) (bool, error)
	List(ctx context.Context) ([]domain.Snapshot, error)
}

type SessionNoteStore interface {
	Write(ctx context.Context, snapshot domain.Snapshot) (string, error)
}

type HistoryIndex interface {
	Upsert(ctx context.Context, summary domain.Summary) error
	List(ctx context.Context, limit int) ([]domain.Summary, error)
	Reset(ctx context.Context) error
}

type PermissionProvider interface {
	IsGranted(ctx context.Context, capability domain.Capability) bool
	// Request asks for capability and reports the answer through onResult. onResult
	// may run on another goroutine.
	Request(ctx context.Context, capability domain.Capability, onResult func(granted bool))
}

type Handle string

type SensorSource interface {
	// Subscribe returns apperrors.ErrSensorUnavailable when no sensor can be read.
	Subscribe(ctx context.Context, onSample func(domain.Sample)) (Handle, error)
	Unsubscribe(ctx context.Context, handle Handle) error
}
