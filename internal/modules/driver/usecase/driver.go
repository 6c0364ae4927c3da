package usecase

import (
	"context"

	"jogtrack/internal/modules/driver/dto"
	driverin "jogtrack/internal/modules/driver/port/in"
	"jogtrack/internal/modules/driver/service"
)

type Interactor struct {
	svc *service.DriverService
}

func NewInteractor(svc *service.DriverService) driverin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) List(ctx context.Context) ([]dto.DriverInfo, error) {
	return i.svc.List(ctx)
}

func (i *Interactor) Doctor(ctx context.Context) ([]dto.DoctorResult, error) {
	return i.svc.Doctor(ctx)
}

func (i *Interactor) Metadata(ctx context.Context, driverName string) (dto.MetadataOutput, error) {
	return i.svc.Metadata(ctx, driverName)
}

func (i *Interactor) CheckPermission(ctx context.Context, input dto.PermissionInput) (dto.PermissionOutput, error) {
	return i.svc.CheckPermission(ctx, input)
}

func (i *Interactor) RequestPermission(ctx context.Context, input dto.PermissionInput) (dto.PermissionOutput, error) {
	return i.svc.RequestPermission(ctx, input)
}

func (i *Interactor) ReadSamples(ctx context.Context, input dto.ReadSamplesInput) (dto.ReadSamplesOutput, error) {
	return i.svc.ReadSamples(ctx, input)
}

func (i *Interactor) Close(ctx context.Context) error {
	return i.svc.Close(ctx)
}
