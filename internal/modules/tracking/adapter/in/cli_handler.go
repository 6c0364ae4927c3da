package in

import (
	"context"

	trackingdto "jogtrack/internal/modules/tracking/dto"
	trackingin "jogtrack/internal/modules/tracking/port/in"
)

type CLIHandler struct {
	usecase trackingin.Usecase
}

func NewCLIHandler(usecase trackingin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

// Restore must run before any other call in a fresh process.
func (h CLIHandler) Restore(ctx context.Context) (trackingdto.ResumeOutput, error) {
	return h.usecase.OnResume(ctx)
}

func (h CLIHandler) Start(ctx context.Context) (trackingdto.StartOutput, error) {
	return h.usecase.RequestStart(ctx)
}

func (h CLIHandler) Stop(ctx context.Context) (trackingdto.StopOutput, error) {
	return h.usecase.RequestStop(ctx)
}

func (h CLIHandler) Pause(ctx context.Context) (trackingdto.SnapshotOutput, error) {
	return h.usecase.Pause(ctx)
}

func (h CLIHandler) Resume(ctx context.Context) (trackingdto.SnapshotOutput, error) {
	return h.usecase.Resume(ctx)
}

func (h CLIHandler) Snapshot(ctx context.Context) trackingdto.SnapshotOutput {
	return h.usecase.CurrentSnapshot(ctx)
}

func (h CLIHandler) Health(ctx context.Context) trackingdto.HealthOutput {
	return h.usecase.Health(ctx)
}

func (h CLIHandler) History(ctx context.Context, limit int) ([]trackingdto.StopOutput, error) {
	return h.usecase.History(ctx, trackingdto.HistoryInput{Limit: limit})
}

func (h CLIHandler) Reindex(ctx context.Context) (trackingdto.ReindexOutput, error) {
	return h.usecase.Reindex(ctx)
}
