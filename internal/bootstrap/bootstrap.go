package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"

	driverinadapter "jogtrack/internal/modules/driver/adapter/in"
	driveroutadapter "jogtrack/internal/modules/driver/adapter/out"
	driverin "jogtrack/internal/modules/driver/port/in"
	driverservice "jogtrack/internal/modules/driver/service"
	driverusecase "jogtrack/internal/modules/driver/usecase"
	trackinginadapter "jogtrack/internal/modules/tracking/adapter/in"
	trackingoutadapter "jogtrack/internal/modules/tracking/adapter/out"
	"jogtrack/internal/modules/tracking/domain"
	trackingout "jogtrack/internal/modules/tracking/port/out"
	trackingservice "jogtrack/internal/modules/tracking/service"
	trackingusecase "jogtrack/internal/modules/tracking/usecase"
	"jogtrack/internal/platform/clock"
	"jogtrack/internal/platform/config"
	"jogtrack/internal/platform/id"
	"jogtrack/internal/platform/logging"
	uiapp "jogtrack/internal/ui/app"
)

type App struct {
	TrackingCLI trackinginadapter.CLIHandler
	DriverCLI   driverinadapter.CLIHandler
	Logger      hclog.Logger

	controller *trackingusecase.Controller
	sensor     *trackingoutadapter.DriverSensorSource
	drivers    driverin.Usecase
	index      *trackingoutadapter.SQLiteHistoryIndex
	logCloser  io.Closer
}

func New(cfg config.Config) (*App, error) {
	logger, logCloser, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}

	drivers := driverusecase.NewInteractor(driverservice.NewDriverService(
		driveroutadapter.NewFileManifestStore(cfg.DataPath, cfg.DriversPath),
		driveroutadapter.NewGRPCHost(logger),
	))

	index, err := trackingoutadapter.NewSQLiteHistoryIndex(cfg.DBPath, logger.Named("index"))
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("new history index: %w", err)
	}

	history := trackingoutadapter.NewFileHistoryLog(cfg.HistoryPath, logger)
	store := trackingoutadapter.NewFileSnapshotStore(
		cfg.SnapshotPath,
		history,
		trackingoutadapter.NewVaultSessionNoteStore(cfg.NotesDir),
	)
	sensor := trackingoutadapter.NewDriverSensorSource(drivers, trackingoutadapter.SensorConfig{
		Driver:       cfg.Sensor.Driver,
		PollInterval: cfg.Sensor.PollInterval,
		BatchSize:    cfg.Sensor.BatchSize,
	}, id.RandomHex{}, logger)

	var permissions trackingout.PermissionProvider
	if cfg.Sensor.Driver != "" {
		permissions = trackingoutadapter.NewDriverPermissionProvider(drivers, cfg.Sensor.Driver)
	} else {
		permissions = trackingoutadapter.NewStaticPermissionProvider(capabilities(cfg.Permissions.Granted))
	}

	controller := trackingusecase.NewController(trackingusecase.Deps{
		Tracking: trackingservice.NewTrackingService(clock.SystemClock{}, id.UUID{}, domain.NewAggregator(domain.AggregatorConfig{
			MaxSpeedMPS:  cfg.Tracking.MaxSpeedMPS,
			MaxAccuracyM: cfg.Tracking.MaxAccuracyM,
		})),
		Persistence: trackingservice.NewPersistenceService(store, trackingservice.PersistenceConfig{
			Retries:       cfg.Persistence.Retries,
			Backoff:       cfg.Persistence.Backoff,
			DegradedAfter: cfg.Persistence.DegradedAfter,
		}, logger),
		History:     history,
		Index:       index,
		Permissions: permissions,
		Sensor:      sensor,
		Logger:      logger,
	}, trackingusecase.Config{
		Required:        capabilities(cfg.Permissions.Required),
		PersistEvery:    cfg.Tracking.PersistEverySamples,
		PersistInterval: cfg.Tracking.PersistInterval,
	})

	return &App{
		TrackingCLI: trackinginadapter.NewCLIHandler(controller),
		DriverCLI:   driverinadapter.NewCLIHandler(drivers),
		Logger:      logger,
		controller:  controller,
		sensor:      sensor,
		drivers:     drivers,
		index:       index,
		logCloser:   logCloser,
	}, nil
}

// Close flushes the active session and releases drivers, the index and the log file.
// The session itself stays active and is restored by the next process.
func (a *App) Close(ctx context.Context) error {
	errs := []error{a.controller.Close(ctx)}
	errs = append(errs, a.sensor.Close(), a.drivers.Close(ctx), a.index.Close())
	err := errors.Join(errs...)
	if err != nil {
		a.Logger.Error("shutdown", "error", err)
	}
	return errors.Join(err, a.logCloser.Close())
}

func RunTUI(app *App) error {
	program := tea.NewProgram(uiapp.NewModel(app.TrackingCLI), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func capabilities(names []string) []domain.Capability {
	out := make([]domain.Capability, 0, len(names))
	for _, name := range names {
		out = append(out, domain.Capability(name))
	}
	return out
}
