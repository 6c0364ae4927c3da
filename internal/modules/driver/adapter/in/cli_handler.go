package in

import (
	"context"

	"jogtrack/internal/modules/driver/dto"
	driverin "jogtrack/internal/modules/driver/port/in"
)

type CLIHandler struct {
	usecase driverin.Usecase
}

func NewCLIHandler(usecase driverin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) List(ctx context.Context) ([]dto.DriverInfo, error) {
	return h.usecase.List(ctx)
}

func (h CLIHandler) Doctor(ctx context.Context) ([]dto.DoctorResult, error) {
	return h.usecase.Doctor(ctx)
}
