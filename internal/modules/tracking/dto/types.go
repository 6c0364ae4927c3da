package dto

import "time"

type StartOutput struct {
	SessionID string
	StartedAt time.Time
	// SensorUnavailable is set when the session started without a live sensor.
	SensorUnavailable bool
}

type StopOutput struct {
	SessionID           string
	StartedAt           time.Time
	StoppedAt           time.Time
	TotalSteps          int64
	TotalDistanceMeters float64
	DurationSeconds     int64
	ActiveSeconds       int64
	AverageSpeedMPS     float64
}

type SnapshotOutput struct {
	SessionID           string
	State               string
	StartedAt           time.Time
	StoppedAt           time.Time
	LastSampleAt        time.Time
	TotalSteps          int64
	TotalDistanceMeters float64
	PausedSeconds       int64
}

type HealthOutput struct {
	SensorUnavailable   bool
	PersistenceDegraded bool
	ConsecutiveFailures int
	PendingArchive      bool
	AcceptedSamples     uint64
	DroppedSamples      uint64
}

type ResumeOutput struct {
	Restored  bool
	Archived  bool
	SessionID string
	State     string
}

type HistoryInput struct {
	Limit int
}

type ReindexOutput struct {
	Sessions int
}
