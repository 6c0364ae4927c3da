package out

import (
	"context"

	"jogtrack/internal/modules/driver/domain"
)

type ManifestStore interface {
	Load(ctx context.Context) ([]domain.Manifest, error)
}

// Host runs driver binaries. Connections may be reused across calls until Close.
type Host interface {
	CheckLifecycle(ctx context.Context, manifest domain.Manifest) error
	GetMetadata(ctx context.Context, manifest domain.Manifest) (domain.Metadata, error)
	CheckPermission(ctx context.Context, manifest domain.Manifest, permission string) (bool, error)
	RequestPermission(ctx context.Context, manifest domain.Manifest, permission string) (bool, error)
	ReadSamples(ctx context.Context, manifest domain.Manifest, cursor string, limit int) (domain.Batch, error)
	Close() error
}
