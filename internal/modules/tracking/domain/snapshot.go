package domain

import (
	"errors"
	"fmt"
	"time"

	apperrors "jogtrack/internal/platform/errors"
)

const SchemaVersion = 1

var (
	ErrUnknownSampleKind = errors.New("unknown sample kind")
	ErrInvalidFix        = errors.New("invalid location fix")
	ErrNegativeCount     = errors.New("negative step counter")
	ErrImplausibleSpeed  = errors.New("implausible speed")
	ErrInaccurateFix     = errors.New("fix accuracy below threshold")
	ErrNegativeDelta     = errors.New("negative delta")
)

type State int

const (
	StateIdle State = iota
	StateTracking
	StatePaused
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:     "idle",
	StateTracking: "tracking",
	StatePaused:   "paused",
	StateStopped:  "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
	return []byte(name), nil
}

func (s *State) UnmarshalText(raw []byte) error {
	for state, name := range stateNames {
		if name == string(raw) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(raw))
}

// Active reports whether the state belongs to a live (not yet archived) session.
func (s State) Active() bool {
	return s == StateTracking || s == StatePaused
}

type Transition string

const (
	TransitionStart  Transition = "start"
	TransitionPause  Transition = "pause"
	TransitionResume Transition = "resume"
	TransitionStop   Transition = "stop"
	TransitionSample Transition = "sample"
)

// TransitionError names the state a request was rejected in. It matches
// apperrors.ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From       State
	Transition Transition
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s while %s", e.Transition, e.From)
}

func (e *TransitionError) Unwrap() error {
	return apperrors.ErrInvalidTransition
}

// Cursor is the aggregator state that must survive restarts together with the totals.
type Cursor struct {
	LastRawCount int64 `json:"last_raw_count"`
	HasBaseline  bool  `json:"has_baseline"`
	LastFix      *Fix  `json:"last_fix,omitempty"`
}

type Snapshot struct {
	SchemaVersion       int           `json:"schema_version"`
	SessionID           string        `json:"session_id"`
	State               State         `json:"state"`
	StartedAt           time.Time     `json:"started_at"`
	StoppedAt           time.Time     `json:"stopped_at,omitempty"`
	PausedAt            time.Time     `json:"paused_at,omitempty"`
	PausedTotal         time.Duration `json:"paused_total"`
	TotalSteps          int64         `json:"total_steps"`
	TotalDistanceMeters float64       `json:"total_distance_meters"`
	LastSampleAt        time.Time     `json:"last_sample_at,omitempty"`
	Cursor              Cursor        `json:"cursor"`
}

type Summary struct {
	SessionID           string
	StartedAt           time.Time
	StoppedAt           time.Time
	TotalSteps          int64
	TotalDistanceMeters float64
	DurationSeconds     int64
	ActiveSeconds       int64
	AverageSpeedMPS     float64
}

// Start opens a new session. prev is the snapshot currently owned by the caller; it
// must be idle or stopped.
func Start(prev Snapshot, sessionID string, now time.Time) (Snapshot, error) {
	if prev.State != StateIdle && prev.State != StateStopped {
		return Snapshot{}, &TransitionError{From: prev.State, Transition: TransitionStart}
	}
	if sessionID == "" {
		return Snapshot{}, fmt.Errorf("%w: session id is required", apperrors.ErrInvalidInput)
	}
	if sessionID == prev.SessionID {
		return Snapshot{}, fmt.Errorf("%w: session id reused", apperrors.ErrInvalidInput)
	}
	return Snapshot{
		SchemaVersion: SchemaVersion,
		SessionID:     sessionID,
		State:         StateTracking,
		StartedAt:     now,
	}, nil
}

func (s Snapshot) Pause(now time.Time) (Snapshot, error) {
	if s.State != StateTracking {
		return Snapshot{}, &TransitionError{From: s.State, Transition: TransitionPause}
	}
	s.State = StatePaused
	s.PausedAt = now
	return s, nil
}

func (s Snapshot) Resume(now time.Time) (Snapshot, error) {
	if s.State != StatePaused {
		return Snapshot{}, &TransitionError{From: s.State, Transition: TransitionResume}
	}
	s.PausedTotal += nonNegative(now.Sub(s.PausedAt))
	s.PausedAt = time.Time{}
	s.State = StateTracking
	return s, nil
}

// Stop freezes the snapshot and produces its summary. Stopping an idle tracker is
// reported as apperrors.ErrNothingToStop.
func (s Snapshot) Stop(now time.Time) (Snapshot, Summary, error) {
	switch s.State {
	case StateIdle:
		return Snapshot{}, Summary{}, apperrors.ErrNothingToStop
	case StateTracking, StatePaused:
	default:
		return Snapshot{}, Summary{}, &TransitionError{From: s.State, Transition: TransitionStop}
	}
	if s.State == StatePaused {
		s.PausedTotal += nonNegative(now.Sub(s.PausedAt))
		s.PausedAt = time.Time{}
	}
	if now.Before(s.StartedAt) {
		now = s.StartedAt
	}
	s.State = StateStopped
	s.StoppedAt = now
	return s, s.Summary(), nil
}

// Summary is only complete for stopped snapshots; for active ones the duration runs
// up to the last sample.
func (s Snapshot) Summary() Summary {
	end := s.StoppedAt
	if end.IsZero() {
		end = s.LastSampleAt
	}
	duration := nonNegative(end.Sub(s.StartedAt))
	active := nonNegative(duration - s.PausedTotal)
	speed := 0.0
	if active > 0 {
		speed = s.TotalDistanceMeters / active.Seconds()
	}
	return Summary{
		SessionID:           s.SessionID,
		StartedAt:           s.StartedAt,
		StoppedAt:           s.StoppedAt,
		TotalSteps:          s.TotalSteps,
		TotalDistanceMeters: s.TotalDistanceMeters,
		DurationSeconds:     int64(duration.Seconds()),
		ActiveSeconds:       int64(active.Seconds()),
		AverageSpeedMPS:     speed,
	}
}

// Apply folds an aggregated delta into the snapshot. While paused only the cursor
// advances, so steps taken during a pause are never counted.
func (s Snapshot) Apply(delta Delta, cursor Cursor, at time.Time) (Snapshot, error) {
	if !s.State.Active() {
		return Snapshot{}, &TransitionError{From: s.State, Transition: TransitionSample}
	}
	if delta.Steps < 0 || delta.Meters < 0 {
		return Snapshot{}, fmt.Errorf("%w: steps=%d meters=%f", ErrNegativeDelta, delta.Steps, delta.Meters)
	}
	if s.State == StateTracking {
		s.TotalSteps += delta.Steps
		s.TotalDistanceMeters += delta.Meters
	}
	s.Cursor = cursor
	if at.After(s.LastSampleAt) {
		s.LastSampleAt = at
	}
	return s, nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
