package out

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	driverdto "jogtrack/internal/modules/driver/dto"
	driverin "jogtrack/internal/modules/driver/port/in"
	"jogtrack/internal/modules/tracking/domain"
	trackingout "jogtrack/internal/modules/tracking/port/out"
	apperrors "jogtrack/internal/platform/errors"
	"jogtrack/internal/platform/id"
)

type SensorConfig struct {
	Driver       string
	PollInterval time.Duration
	BatchSize    int
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// DriverSensorSource polls a sensor driver on its own goroutine per subscription and
// pushes every reading to the subscriber.
type DriverSensorSource struct {
	drivers driverin.Usecase
	cfg     SensorConfig
	ids     id.Generator
	logger  hclog.Logger

	mu   sync.Mutex
	subs map[trackingout.Handle]*subscription
}

func NewDriverSensorSource(drivers driverin.Usecase, cfg SensorConfig, ids id.Generator, logger hclog.Logger) *DriverSensorSource {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &DriverSensorSource{drivers: drivers, cfg: cfg, ids: ids, logger: logger.Named("sensor"), subs: map[trackingout.Handle]*subscription{}}
}

func (s *DriverSensorSource) Subscribe(ctx context.Context, onSample func(domain.Sample)) (trackingout.Handle, error) {
	if s.cfg.Driver == "" || s.drivers == nil {
		return "", fmt.Errorf("%w: no sensor driver configured", apperrors.ErrSensorUnavailable)
	}
	meta, err := s.drivers.Metadata(ctx, s.cfg.Driver)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrSensorUnavailable, err)
	}
	if !hasSensor(meta.Capabilities) {
		return "", fmt.Errorf("%w: driver %s reports no sensors", apperrors.ErrSensorUnavailable, s.cfg.Driver)
	}

	// polling outlives the request that subscribed
	runCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	handle := trackingout.Handle(s.ids.New())
	s.mu.Lock()
	s.subs[handle] = sub
	s.mu.Unlock()

	go s.poll(runCtx, handle, sub, onSample)
	s.logger.Info("sensor subscribed", "driver", s.cfg.Driver, "handle", handle)
	return handle, nil
}

func (s *DriverSensorSource) Unsubscribe(_ context.Context, handle trackingout.Handle) error {
	s.mu.Lock()
	sub, ok := s.subs[handle]
	delete(s.subs, handle)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: sensor handle %s", apperrors.ErrNotFound, handle)
	}
	sub.cancel()
	<-sub.done
	s.logger.Info("sensor unsubscribed", "handle", handle)
	return nil
}

// Close stops every subscription.
func (s *DriverSensorSource) Close() error {
	s.mu.Lock()
	handles := make([]trackingout.Handle, 0, len(s.subs))
	for handle := range s.subs {
		handles = append(handles, handle)
	}
	s.mu.Unlock()
	for _, handle := range handles {
		_ = s.Unsubscribe(context.Background(), handle)
	}
	return nil
}

func (s *DriverSensorSource) poll(ctx context.Context, handle trackingout.Handle, sub *subscription, onSample func(domain.Sample)) {
	defer close(sub.done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	cursor := ""
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		out, err := s.drivers.ReadSamples(ctx, driverdto.ReadSamplesInput{Driver: s.cfg.Driver, Cursor: cursor, Max: s.cfg.BatchSize})
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			failures++
			if failures == 1 || failures%20 == 0 {
				s.logger.Warn("read samples failed", "handle", handle, "failures", failures, "error", err)
			}
			continue
		}
		failures = 0
		cursor = out.NextCursor
		for _, raw := range out.Samples {
			s.deliver(handle, onSample, toSample(raw))
		}
		if out.Exhausted {
			s.logger.Info("sensor stream exhausted", "handle", handle)
			return
		}
	}
}

// deliver shields the polling goroutine from a panicking subscriber.
func (s *DriverSensorSource) deliver(handle trackingout.Handle, onSample func(domain.Sample), sample domain.Sample) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sample callback panicked", "handle", handle, "panic", fmt.Sprint(r))
		}
	}()
	onSample(sample)
}

func toSample(raw driverdto.SampleOutput) domain.Sample {
	if raw.Kind == string(domain.SampleLocation) {
		return domain.LocationSample(raw.At, raw.Lat, raw.Lon, raw.AccuracyM)
	}
	return domain.Sample{At: raw.At, Kind: domain.SampleKind(raw.Kind), RawSteps: raw.RawSteps}
}

func hasSensor(capabilities []string) bool {
	for _, capability := range capabilities {
		if capability == "step_counter" || capability == "location" {
			return true
		}
	}
	return false
}
