package in

import (
	"context"

	"jogtrack/internal/modules/tracking/dto"
)

type Usecase interface {
	RequestStart(ctx context.Context) (dto.StartOutput, error)
	RequestStop(ctx context.Context) (dto.StopOutput, error)
	Pause(ctx context.Context) (dto.SnapshotOutput, error)
	Resume(ctx context.Context) (dto.SnapshotOutput, error)
	OnResume(ctx context.Context) (dto.ResumeOutput, error)
	CurrentSnapshot(ctx context.Context) dto.SnapshotOutput
	Health(ctx context.Context) dto.HealthOutput
	History(ctx context.Context, input dto.HistoryInput) ([]dto.StopOutput, error)
	Reindex(ctx context.Context) (dto.ReindexOutput, error)
	Close(ctx context.Context) error
}
