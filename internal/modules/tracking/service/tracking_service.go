package service

import (
	"jogtrack/internal/modules/tracking/domain"
	"jogtrack/internal/platform/clock"
	"jogtrack/internal/platform/id"
)

type TrackingService struct {
	clock      clock.Clock
	idGen      id.Generator
	aggregator domain.Aggregator
}

func NewTrackingService(clock clock.Clock, idGen id.Generator, aggregator domain.Aggregator) *TrackingService {
	return &TrackingService{clock: clock, idGen: idGen, aggregator: aggregator}
}

func (s *TrackingService) Start(prev domain.Snapshot) (domain.Snapshot, error) {
	return domain.Start(prev, s.idGen.New(), s.clock.Now())
}

func (s *TrackingService) Pause(snapshot domain.Snapshot) (domain.Snapshot, error) {
	return snapshot.Pause(s.clock.Now())
}

func (s *TrackingService) Resume(snapshot domain.Snapshot) (domain.Snapshot, error) {
	return snapshot.Resume(s.clock.Now())
}

func (s *TrackingService) Stop(snapshot domain.Snapshot) (domain.Snapshot, domain.Summary, error) {
	return snapshot.Stop(s.clock.Now())
}

// Ingest runs sample through the aggregator and folds the result into snapshot.
func (s *TrackingService) Ingest(snapshot domain.Snapshot, sample domain.Sample) (domain.Snapshot, error) {
	if !snapshot.State.Active() {
		return domain.Snapshot{}, &domain.TransitionError{From: snapshot.State, Transition: domain.TransitionSample}
	}
	delta, cursor, err := s.aggregator.Apply(snapshot.Cursor, sample)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snapshot.Apply(delta, cursor, sample.At)
}
