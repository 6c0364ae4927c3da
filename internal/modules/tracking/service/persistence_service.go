package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"jogtrack/internal/modules/tracking/domain"
	trackingout "jogtrack/internal/modules/tracking/port/out"
	apperrors "jogtrack/internal/platform/errors"
)

type PersistenceConfig struct {
	Retries       int
	Backoff       time.Duration
	DegradedAfter int
}

// PersistenceService retries store operations with exponential backoff and tracks
// consecutive failures. Every error it returns matches apperrors.ErrPersistenceFailure,
// except ErrNoSnapshot from Load.
type PersistenceService struct {
	store  trackingout.SnapshotStore
	cfg    PersistenceConfig
	logger hclog.Logger

	mu          sync.Mutex
	consecutive int
}

func NewPersistenceService(store trackingout.SnapshotStore, cfg PersistenceConfig, logger hclog.Logger) *PersistenceService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PersistenceService{store: store, cfg: cfg, logger: logger.Named("persistence")}
}

func (s *PersistenceService) Save(ctx context.Context, snapshot domain.Snapshot) error {
	return s.do(ctx, "save snapshot", func(ctx context.Context) error {
		return s.store.Save(ctx, snapshot)
	})
}

func (s *PersistenceService) Archive(ctx context.Context, snapshot domain.Snapshot) error {
	return s.do(ctx, "archive snapshot", func(ctx context.Context) error {
		return s.store.Archive(ctx, snapshot)
	})
}

func (s *PersistenceService) Load(ctx context.Context) (domain.Snapshot, error) {
	var loaded domain.Snapshot
	err := s.do(ctx, "load snapshot", func(ctx context.Context) error {
		snapshot, err := s.store.Load(ctx)
		if err != nil {
			return err
		}
		loaded = snapshot
		return nil
	})
	return loaded, err
}

func (s *PersistenceService) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.DegradedAfter > 0 && s.consecutive >= s.cfg.DegradedAfter
}

func (s *PersistenceService) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutive
}

func (s *PersistenceService) do(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := s.cfg.Backoff
	var err error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			if sleepErr := sleepContext(ctx, backoff); sleepErr != nil {
				err = errors.Join(err, sleepErr)
				break
			}
			backoff *= 2
		}
		err = fn(ctx)
		if err == nil {
			s.recordSuccess()
			return nil
		}
		if errors.Is(err, apperrors.ErrNoSnapshot) {
			// an empty slot is an answer, not a failure
			s.recordSuccess()
			return err
		}
		s.logger.Warn("store operation failed", "op", op, "attempt", attempt+1, "error", err)
	}
	failures := s.recordFailure()
	if s.cfg.DegradedAfter > 0 && failures == s.cfg.DegradedAfter {
		s.logger.Error("persistence degraded", "consecutive_failures", failures)
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrPersistenceFailure, op, err)
}

func (s *PersistenceService) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consecutive > 0 {
		s.logger.Info("persistence recovered", "after_failures", s.consecutive)
	}
	s.consecutive = 0
}

func (s *PersistenceService) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive++
	return s.consecutive
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
