package in

import (
	"context"

	"jogtrack/internal/modules/driver/dto"
)

type Usecase interface {
	List(ctx context.Context) ([]dto.DriverInfo, error)
	Doctor(ctx context.Context) ([]dto.DoctorResult, error)
	Metadata(ctx context.Context, driverName string) (dto.MetadataOutput, error)
	CheckPermission(ctx context.Context, input dto.PermissionInput) (dto.PermissionOutput, error)
	RequestPermission(ctx context.Context, input dto.PermissionInput) (dto.PermissionOutput, error)
	ReadSamples(ctx context.Context, input dto.ReadSamplesInput) (dto.ReadSamplesOutput, error)
	Close(ctx context.Context) error
}
