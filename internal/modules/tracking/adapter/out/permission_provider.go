package out

import (
	"context"

	driverdto "jogtrack/internal/modules/driver/dto"
	driverin "jogtrack/internal/modules/driver/port/in"
	"jogtrack/internal/modules/tracking/domain"
	trackingout "jogtrack/internal/modules/tracking/port/out"
)

// StaticPermissionProvider answers from configuration. It is used when no sensor driver
// is configured to ask.
type StaticPermissionProvider struct {
	granted map[domain.Capability]bool
}

func NewStaticPermissionProvider(granted []domain.Capability) trackingout.PermissionProvider {
	set := make(map[domain.Capability]bool, len(granted))
	for _, capability := range granted {
		set[capability] = true
	}
	return &StaticPermissionProvider{granted: set}
}

func (p *StaticPermissionProvider) IsGranted(_ context.Context, capability domain.Capability) bool {
	return p.granted[capability]
}

func (p *StaticPermissionProvider) Request(_ context.Context, capability domain.Capability, onResult func(bool)) {
	granted := p.granted[capability]
	go onResult(granted)
}

// DriverPermissionProvider forwards permission checks to the sensor driver, which
// stands in for the platform permission system.
type DriverPermissionProvider struct {
	drivers driverin.Usecase
	driver  string
}

func NewDriverPermissionProvider(drivers driverin.Usecase, driver string) trackingout.PermissionProvider {
	return &DriverPermissionProvider{drivers: drivers, driver: driver}
}

func (p *DriverPermissionProvider) IsGranted(ctx context.Context, capability domain.Capability) bool {
	out, err := p.drivers.CheckPermission(ctx, driverdto.PermissionInput{Driver: p.driver, Permission: string(capability)})
	return err == nil && out.Granted
}

func (p *DriverPermissionProvider) Request(ctx context.Context, capability domain.Capability, onResult func(bool)) {
	go func() {
		out, err := p.drivers.RequestPermission(ctx, driverdto.PermissionInput{Driver: p.driver, Permission: string(capability)})
		onResult(err == nil && out.Granted)
	}()
}
