package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"jogtrack/internal/modules/tracking/domain"
	"jogtrack/internal/modules/tracking/dto"
	trackingout "jogtrack/internal/modules/tracking/port/out"
	"jogtrack/internal/modules/tracking/service"
	apperrors "jogtrack/internal/platform/errors"
)

type Config struct {
	Required        []domain.Capability
	PersistEvery    int
	PersistInterval time.Duration
}

type Deps struct {
	Tracking    *service.TrackingService
	Persistence *service.PersistenceService
	History     trackingout.HistoryLog
	Index       trackingout.HistoryIndex
	Permissions trackingout.PermissionProvider
	Sensor      trackingout.SensorSource
	Logger      hclog.Logger
}

// Controller owns the single tracking session of the process.
//
// Lock order is opMu, then persistMu, then mu. opMu serializes control operations,
// persistMu serializes store writes and mu guards the in-memory state. The sample path
// only ever takes mu.
type Controller struct {
	svc         *service.TrackingService
	persist     *service.PersistenceService
	history     trackingout.HistoryLog
	index       trackingout.HistoryIndex
	permissions trackingout.PermissionProvider
	sensor      trackingout.SensorSource
	logger      hclog.Logger
	cfg         Config

	opMu      sync.Mutex
	persistMu sync.Mutex

	mu                sync.Mutex
	snapshot          domain.Snapshot
	handle            trackingout.Handle
	subscribed        bool
	sensorUnavailable bool
	pendingStart      bool
	pendingArchive    *domain.Snapshot
	dirty             int
	accepted          uint64
	dropped           uint64
	closed            bool

	flushCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewController(deps Deps, cfg Config) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.PersistEvery <= 0 {
		cfg.PersistEvery = 1
	}
	if cfg.PersistInterval <= 0 {
		cfg.PersistInterval = 5 * time.Second
	}
	c := &Controller{
		svc:         deps.Tracking,
		persist:     deps.Persistence,
		history:     deps.History,
		index:       deps.Index,
		permissions: deps.Permissions,
		sensor:      deps.Sensor,
		logger:      logger.Named("tracking"),
		cfg:         cfg,
		flushCh:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	c.wg.Add(1)
	go c.runPersister()
	return c
}

func (c *Controller) RequestStart(ctx context.Context) (dto.StartOutput, error) {
	if err := c.beginStart(); err != nil {
		return dto.StartOutput{}, err
	}
	permErr := c.awaitPermissions(ctx)

	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	c.pendingStart = false
	closed := c.closed
	prev := c.snapshot
	c.mu.Unlock()
	if permErr != nil {
		c.logger.Info("start rejected", "error", permErr)
		return dto.StartOutput{}, permErr
	}
	if closed {
		return dto.StartOutput{}, fmt.Errorf("%w: controller closed", apperrors.ErrStartCancelled)
	}

	if err := c.flush(ctx, false); err != nil {
		// the new session will overwrite the slot; history still gets the old one later
		c.logger.Warn("previous session not archived yet", "error", err)
	}
	next, err := c.svc.Start(prev)
	if err != nil {
		return dto.StartOutput{}, err
	}
	c.mu.Lock()
	c.snapshot = next
	c.dirty = 0
	c.mu.Unlock()
	c.logger.Info("session started", "session_id", next.SessionID)

	sensorErr := c.subscribe(ctx)
	persistErr := c.persistCurrent(ctx)
	out := dto.StartOutput{SessionID: next.SessionID, StartedAt: next.StartedAt, SensorUnavailable: sensorErr != nil}
	return out, errors.Join(sensorErr, persistErr)
}

func (c *Controller) beginStart() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: controller closed", apperrors.ErrStartCancelled)
	}
	if c.snapshot.State.Active() {
		return &domain.TransitionError{From: c.snapshot.State, Transition: domain.TransitionStart}
	}
	if c.pendingStart {
		return fmt.Errorf("%w: a start is already waiting for permission", apperrors.ErrInvalidTransition)
	}
	c.pendingStart = true
	return nil
}

// awaitPermissions runs without opMu so stop and close stay responsive while a
// permission prompt is open.
func (c *Controller) awaitPermissions(ctx context.Context) error {
	for _, capability := range c.cfg.Required {
		if c.permissions.IsGranted(ctx, capability) {
			continue
		}
		result := make(chan bool, 1)
		var once sync.Once
		c.permissions.Request(ctx, capability, func(granted bool) {
			once.Do(func() { result <- granted })
		})
		select {
		case granted := <-result:
			if !granted {
				return fmt.Errorf("%w: %s", apperrors.ErrPermissionDenied, capability)
			}
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", apperrors.ErrStartCancelled, ctx.Err())
		case <-c.done:
			return fmt.Errorf("%w: controller closed", apperrors.ErrStartCancelled)
		}
	}
	return nil
}

func (c *Controller) RequestStop(ctx context.Context) (dto.StopOutput, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	stopped, summary, err := c.svc.Stop(c.snapshot)
	if err != nil {
		c.mu.Unlock()
		return dto.StopOutput{}, err
	}
	c.snapshot = stopped
	c.dirty = 0
	c.mu.Unlock()
	c.unsubscribe(ctx)
	c.logger.Info("session stopped", "session_id", stopped.SessionID, "steps", summary.TotalSteps, "meters", summary.TotalDistanceMeters)

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if err := c.persist.Save(ctx, stopped); err != nil {
		c.logger.Warn("saving stopped snapshot failed", "session_id", stopped.SessionID, "error", err)
	}
	return toStopOutput(summary), c.archiveLocked(ctx, stopped)
}

func (c *Controller) Pause(ctx context.Context) (dto.SnapshotOutput, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	next, err := c.svc.Pause(c.snapshot)
	if err != nil {
		c.mu.Unlock()
		return dto.SnapshotOutput{}, err
	}
	c.snapshot = next
	c.mu.Unlock()
	c.logger.Info("session paused", "session_id", next.SessionID)
	return toSnapshotOutput(next), c.persistCurrent(ctx)
}

// Resume also retries the sensor subscription if the session has been running without one.
func (c *Controller) Resume(ctx context.Context) (dto.SnapshotOutput, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	next, err := c.svc.Resume(c.snapshot)
	if err != nil {
		c.mu.Unlock()
		return dto.SnapshotOutput{}, err
	}
	c.snapshot = next
	subscribed := c.subscribed
	c.mu.Unlock()
	c.logger.Info("session resumed", "session_id", next.SessionID)

	var sensorErr error
	if !subscribed {
		sensorErr = c.subscribe(ctx)
	}
	return toSnapshotOutput(next), errors.Join(sensorErr, c.persistCurrent(ctx))
}

// OnSample is the sensor callback. It never blocks on I/O and never fails: rejected
// samples are counted and logged.
func (c *Controller) OnSample(sample domain.Sample) {
	c.mu.Lock()
	if c.closed {
		c.dropped++
		c.mu.Unlock()
		return
	}
	next, err := c.svc.Ingest(c.snapshot, sample)
	if err != nil {
		c.dropped++
		c.mu.Unlock()
		c.logger.Debug("sample dropped", "kind", sample.Kind, "at", sample.At, "error", err)
		return
	}
	c.snapshot = next
	c.accepted++
	c.dirty++
	flush := c.dirty >= c.cfg.PersistEvery
	c.mu.Unlock()
	if flush {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

// OnResume restores the persisted session after a restart. A tracking session keeps
// its id and cursor, so the next raw counter reading continues the count.
func (c *Controller) OnResume(ctx context.Context) (dto.ResumeOutput, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := c.snapshot
	c.mu.Unlock()
	if current.State.Active() {
		return dto.ResumeOutput{Restored: true, SessionID: current.SessionID, State: current.State.String()}, nil
	}

	snapshot, err := c.persist.Load(ctx)
	if errors.Is(err, apperrors.ErrNoSnapshot) {
		return dto.ResumeOutput{State: domain.StateIdle.String()}, nil
	}
	if err != nil {
		return dto.ResumeOutput{}, err
	}

	switch snapshot.State {
	case domain.StateStopped:
		c.mu.Lock()
		c.snapshot = snapshot
		c.mu.Unlock()
		c.persistMu.Lock()
		err := c.archiveLocked(ctx, snapshot)
		c.persistMu.Unlock()
		c.logger.Info("archived leftover session", "session_id", snapshot.SessionID)
		return dto.ResumeOutput{Archived: err == nil, SessionID: snapshot.SessionID, State: snapshot.State.String()}, err
	case domain.StateTracking, domain.StatePaused:
		c.mu.Lock()
		c.snapshot = snapshot
		c.dirty = 0
		c.mu.Unlock()
		c.logger.Info("session restored", "session_id", snapshot.SessionID, "state", snapshot.State, "steps", snapshot.TotalSteps)
		out := dto.ResumeOutput{Restored: true, SessionID: snapshot.SessionID, State: snapshot.State.String()}
		return out, c.subscribe(ctx)
	default:
		return dto.ResumeOutput{State: snapshot.State.String()}, nil
	}
}

func (c *Controller) CurrentSnapshot(_ context.Context) dto.SnapshotOutput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return toSnapshotOutput(c.snapshot)
}

func (c *Controller) Health(_ context.Context) dto.HealthOutput {
	c.mu.Lock()
	out := dto.HealthOutput{
		SensorUnavailable: c.sensorUnavailable,
		PendingArchive:    c.pendingArchive != nil,
		AcceptedSamples:   c.accepted,
		DroppedSamples:    c.dropped,
	}
	c.mu.Unlock()
	out.PersistenceDegraded = c.persist.Degraded()
	out.ConsecutiveFailures = c.persist.ConsecutiveFailures()
	return out
}

func (c *Controller) History(ctx context.Context, input dto.HistoryInput) ([]dto.StopOutput, error) {
	if c.index == nil {
		return nil, fmt.Errorf("history index is not configured")
	}
	summaries, err := c.index.List(ctx, input.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.StopOutput, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, toStopOutput(summary))
	}
	return out, nil
}

// Reindex rebuilds the history index from the history log.
func (c *Controller) Reindex(ctx context.Context) (dto.ReindexOutput, error) {
	if c.index == nil || c.history == nil {
		return dto.ReindexOutput{}, fmt.Errorf("history index is not configured")
	}
	entries, err := c.history.List(ctx)
	if err != nil {
		return dto.ReindexOutput{}, err
	}
	if err := c.index.Reset(ctx); err != nil {
		return dto.ReindexOutput{}, err
	}
	for _, entry := range entries {
		if err := c.index.Upsert(ctx, entry.Summary()); err != nil {
			return dto.ReindexOutput{}, err
		}
	}
	c.logger.Info("history reindexed", "sessions", len(entries))
	return dto.ReindexOutput{Sessions: len(entries)}, nil
}

// Flush writes the active snapshot if samples arrived since the last write and retries
// a pending archive.
func (c *Controller) Flush(ctx context.Context) error {
	return c.flush(ctx, false)
}

// Close cancels pending starts, stops the sensor and writes the final snapshot. The
// session stays active on disk and is picked up by OnResume in the next process.
func (c *Controller) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.done) })
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.unsubscribe(ctx)
	c.wg.Wait()
	err := c.flush(ctx, true)
	c.logger.Info("tracking closed")
	return err
}

func (c *Controller) runPersister() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		case <-c.flushCh:
		}
		if err := c.flush(context.Background(), false); err != nil {
			c.logger.Warn("background flush failed", "error", err)
		}
	}
}

// flush captures the snapshot while holding persistMu, so it can never write a session
// that a concurrent stop has already archived.
func (c *Controller) flush(ctx context.Context, force bool) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	pending := c.pendingArchive
	c.mu.Unlock()
	var archiveErr error
	if pending != nil {
		archiveErr = c.archiveLocked(ctx, *pending)
	}

	c.mu.Lock()
	snapshot := c.snapshot
	dirty := c.dirty
	c.dirty = 0
	c.mu.Unlock()
	if !snapshot.State.Active() || (dirty == 0 && !force) {
		return archiveErr
	}
	if err := c.persist.Save(ctx, snapshot); err != nil {
		c.mu.Lock()
		c.dirty += dirty
		c.mu.Unlock()
		return errors.Join(archiveErr, err)
	}
	return archiveErr
}

// persistCurrent synchronously saves the in-memory snapshot after a transition.
func (c *Controller) persistCurrent(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	snapshot := c.snapshot
	c.dirty = 0
	c.mu.Unlock()
	if err := c.persist.Save(ctx, snapshot); err != nil {
		c.logger.Warn("saving snapshot failed", "session_id", snapshot.SessionID, "error", err)
		return err
	}
	return nil
}

// archiveLocked must be called with persistMu held. A failed archive is remembered and
// retried by the next flush.
func (c *Controller) archiveLocked(ctx context.Context, snapshot domain.Snapshot) error {
	if err := c.persist.Archive(ctx, snapshot); err != nil {
		c.mu.Lock()
		c.pendingArchive = &snapshot
		c.mu.Unlock()
		c.logger.Warn("archive failed", "session_id", snapshot.SessionID, "error", err)
		return err
	}
	c.mu.Lock()
	if c.pendingArchive != nil && c.pendingArchive.SessionID == snapshot.SessionID {
		c.pendingArchive = nil
	}
	c.mu.Unlock()
	if c.index != nil {
		if err := c.index.Upsert(ctx, snapshot.Summary()); err != nil {
			// the log stays authoritative; reindex repairs the index
			c.logger.Warn("history index update failed", "session_id", snapshot.SessionID, "error", err)
		}
	}
	return nil
}

func (c *Controller) subscribe(ctx context.Context) error {
	handle, err := c.sensor.Subscribe(ctx, c.OnSample)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.sensorUnavailable = true
		c.logger.Warn("sensor unavailable, tracking in degraded mode", "error", err)
		if !errors.Is(err, apperrors.ErrSensorUnavailable) {
			err = fmt.Errorf("%w: %w", apperrors.ErrSensorUnavailable, err)
		}
		return err
	}
	c.handle = handle
	c.subscribed = true
	c.sensorUnavailable = false
	return nil
}

func (c *Controller) unsubscribe(ctx context.Context) {
	c.mu.Lock()
	handle := c.handle
	subscribed := c.subscribed
	c.subscribed = false
	c.handle = ""
	c.mu.Unlock()
	if !subscribed {
		return
	}
	if err := c.sensor.Unsubscribe(ctx, handle); err != nil {
		c.logger.Warn("unsubscribe failed", "handle", handle, "error", err)
	}
}

func toStopOutput(summary domain.Summary) dto.StopOutput {
	return dto.StopOutput{
		SessionID:           summary.SessionID,
		StartedAt:           summary.StartedAt,
		StoppedAt:           summary.StoppedAt,
		TotalSteps:          summary.TotalSteps,
		TotalDistanceMeters: summary.TotalDistanceMeters,
		DurationSeconds:     summary.DurationSeconds,
		ActiveSeconds:       summary.ActiveSeconds,
		AverageSpeedMPS:     summary.AverageSpeedMPS,
	}
}

func toSnapshotOutput(snapshot domain.Snapshot) dto.SnapshotOutput {
	return dto.SnapshotOutput{
		SessionID:           snapshot.SessionID,
		State:               snapshot.State.String(),
		StartedAt:           snapshot.StartedAt,
		StoppedAt:           snapshot.StoppedAt,
		LastSampleAt:        snapshot.LastSampleAt,
		TotalSteps:          snapshot.TotalSteps,
		TotalDistanceMeters: snapshot.TotalDistanceMeters,
		PausedSeconds:       int64(snapshot.PausedTotal.Seconds()),
	}
}
