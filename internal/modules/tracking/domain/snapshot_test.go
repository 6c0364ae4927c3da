package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"jogtrack/internal/modules/tracking/domain"
	apperrors "jogtrack/internal/platform/errors"
)

func mustStart(t *testing.T, id string, at time.Time) domain.Snapshot {
	t.Helper()
	snapshot, err := domain.Start(domain.Snapshot{}, id, at)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return snapshot
}

func TestStartFromIdleProducesFreshSession(t *testing.T) {
	t.Parallel()
	snapshot := mustStart(t, "s-1", t0)
	want := domain.Snapshot{
		SchemaVersion: domain.SchemaVersion,
		SessionID:     "s-1",
		State:         domain.StateTracking,
		StartedAt:     t0,
	}
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Fatalf("unexpected snapshot (-want +got):\n%s", diff)
	}
}

func TestStartRejectsActiveSessionAndReusedID(t *testing.T) {
	t.Parallel()
	active := mustStart(t, "s-1", t0)
	_, err := domain.Start(active, "s-2", t0)
	var transitionErr *domain.TransitionError
	if !errors.As(err, &transitionErr) || !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if transitionErr.From != domain.StateTracking || transitionErr.Transition != domain.TransitionStart {
		t.Fatalf("transition error must name state and request: %+v", transitionErr)
	}

	stopped, _, err := active.Stop(t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := domain.Start(stopped, "s-1", t0.Add(2*time.Minute)); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected reused id to be rejected, got %v", err)
	}
	if _, err := domain.Start(stopped, "", t0.Add(2*time.Minute)); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected empty id to be rejected, got %v", err)
	}
	next, err := domain.Start(stopped, "s-2", t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("start after stop: %v", err)
	}
	if next.TotalSteps != 0 || next.SessionID != "s-2" {
		t.Fatalf("restart must begin with zero totals: %+v", next)
	}
}

func TestStopFromIdleAndStopped(t *testing.T) {
	t.Parallel()
	if _, _, err := (domain.Snapshot{}).Stop(t0); !errors.Is(err, apperrors.ErrNothingToStop) {
		t.Fatalf("expected nothing to stop, got %v", err)
	}
	stopped, _, err := mustStart(t, "s-1", t0).Stop(t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, _, err := stopped.Stop(t0.Add(2 * time.Minute)); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestPauseResumeAccountsPausedTime(t *testing.T) {
	t.Parallel()
	snapshot := mustStart(t, "s-1", t0)
	snapshot, err := snapshot.Pause(t0.Add(10 * time.Minute))
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := snapshot.Pause(t0.Add(11 * time.Minute)); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected double pause to fail, got %v", err)
	}
	snapshot, err = snapshot.Resume(t0.Add(15 * time.Minute))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := snapshot.Resume(t0.Add(16 * time.Minute)); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected resume while tracking to fail, got %v", err)
	}
	snapshot, err = snapshot.Pause(t0.Add(20 * time.Minute))
	if err != nil {
		t.Fatalf("second pause: %v", err)
	}
	stopped, summary, err := snapshot.Stop(t0.Add(30 * time.Minute))
	if err != nil {
		t.Fatalf("stop while paused: %v", err)
	}
	if stopped.PausedTotal != 15*time.Minute {
		t.Fatalf("expected 15m paused, got %s", stopped.PausedTotal)
	}
	if summary.DurationSeconds != 1800 || summary.ActiveSeconds != 900 {
		t.Fatalf("unexpected summary durations: %+v", summary)
	}
}

func TestSamplesWhilePausedOnlyAdvanceCursor(t *testing.T) {
	t.Parallel()
	snapshot := mustStart(t, "s-1", t0)
	cursor := domain.Cursor{LastRawCount: 100, HasBaseline: true}
	snapshot, err := snapshot.Apply(domain.Delta{}, cursor, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("apply baseline: %v", err)
	}
	snapshot, _ = snapshot.Pause(t0.Add(2 * time.Second))
	cursor.LastRawCount = 160
	snapshot, err = snapshot.Apply(domain.Delta{Steps: 60}, cursor, t0.Add(3*time.Second))
	if err != nil {
		t.Fatalf("apply while paused: %v", err)
	}
	if snapshot.TotalSteps != 0 {
		t.Fatalf("paused steps must not count, got %d", snapshot.TotalSteps)
	}
	if snapshot.Cursor.LastRawCount != 160 {
		t.Fatalf("cursor must advance while paused, got %d", snapshot.Cursor.LastRawCount)
	}
}

func TestStoppedSnapshotIsFrozen(t *testing.T) {
	t.Parallel()
	snapshot := mustStart(t, "s-1", t0)
	snapshot, err := snapshot.Apply(domain.Delta{Steps: 40, Meters: 30}, domain.Cursor{LastRawCount: 540, HasBaseline: true}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	stopped, summary, err := snapshot.Stop(t0.Add(2 * time.Minute))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	frozen := stopped
	if _, err := stopped.Apply(domain.Delta{Steps: 5}, stopped.Cursor, t0.Add(3*time.Minute)); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected sample after stop to be rejected, got %v", err)
	}
	if diff := cmp.Diff(frozen, stopped); diff != "" {
		t.Fatalf("stopped snapshot changed (-want +got):\n%s", diff)
	}
	if summary.TotalSteps != 40 || summary.TotalDistanceMeters != 30 || summary.DurationSeconds != 120 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.AverageSpeedMPS != 0.25 {
		t.Fatalf("expected 0.25 m/s, got %f", summary.AverageSpeedMPS)
	}
}

func TestApplyRejectsNegativeDeltaAndKeepsLatestSampleTime(t *testing.T) {
	t.Parallel()
	snapshot := mustStart(t, "s-1", t0)
	if _, err := snapshot.Apply(domain.Delta{Steps: -1}, domain.Cursor{}, t0); !errors.Is(err, domain.ErrNegativeDelta) {
		t.Fatalf("expected negative delta error, got %v", err)
	}
	snapshot, _ = snapshot.Apply(domain.Delta{Steps: 1}, domain.Cursor{}, t0.Add(time.Minute))
	snapshot, _ = snapshot.Apply(domain.Delta{Steps: 1}, domain.Cursor{}, t0.Add(30*time.Second))
	if !snapshot.LastSampleAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("last sample time must not go backwards: %s", snapshot.LastSampleAt)
	}
	if snapshot.TotalSteps != 2 {
		t.Fatalf("expected 2 steps, got %d", snapshot.TotalSteps)
	}
}

func TestStopClampsClockSkewToStart(t *testing.T) {
	t.Parallel()
	_, summary, err := mustStart(t, "s-1", t0).Stop(t0.Add(-time.Hour))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !summary.StoppedAt.Equal(t0) || summary.DurationSeconds != 0 {
		t.Fatalf("expected clamped stop time, got %+v", summary)
	}
}

func TestStateTextRoundTrip(t *testing.T) {
	t.Parallel()
	for _, state := range []domain.State{domain.StateIdle, domain.StateTracking, domain.StatePaused, domain.StateStopped} {
		raw, err := state.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", state, err)
		}
		var back domain.State
		if err := back.UnmarshalText(raw); err != nil || back != state {
			t.Fatalf("round trip %s: got %v err=%v", raw, back, err)
		}
	}
	var bad domain.State
	if err := bad.UnmarshalText([]byte("jogging")); err == nil {
		t.Fatalf("expected unknown state error")
	}
}
