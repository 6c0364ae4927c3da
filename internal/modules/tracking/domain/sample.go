package domain

import (
	"fmt"
	"time"
)

type SampleKind string

const (
	SampleStepCount SampleKind = "step_count"
	SampleLocation  SampleKind = "location"
)

func (k SampleKind) Validate() error {
	switch k {
	case SampleStepCount, SampleLocation:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSampleKind, string(k))
	}
}

// Capability is a platform permission the tracker needs before it may read sensors.
type Capability string

const (
	CapabilityActivityRecognition Capability = "activity_recognition"
	CapabilityLocation            Capability = "location"
)

// Fix is one location reading. AccuracyM is the reported horizontal accuracy radius;
// zero means the source did not report one.
type Fix struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
	At        time.Time `json:"at"`
}

func (f Fix) Validate() error {
	if f.Lat < -90 || f.Lat > 90 || f.Lon < -180 || f.Lon > 180 {
		return fmt.Errorf("%w: lat=%f lon=%f", ErrInvalidFix, f.Lat, f.Lon)
	}
	if f.AccuracyM < 0 {
		return fmt.Errorf("%w: negative accuracy", ErrInvalidFix)
	}
	return nil
}

// Sample is a single sensor reading. RawSteps is the cumulative hardware counter
// (steps since device boot) and is only meaningful for step_count samples; Fix is only
// meaningful for location samples.
type Sample struct {
	At       time.Time  `json:"at"`
	Kind     SampleKind `json:"kind"`
	RawSteps int64      `json:"raw_steps,omitempty"`
	Fix      Fix        `json:"fix"`
}

func StepSample(at time.Time, raw int64) Sample {
	return Sample{At: at, Kind: SampleStepCount, RawSteps: raw}
}

func LocationSample(at time.Time, lat, lon, accuracyM float64) Sample {
	return Sample{At: at, Kind: SampleLocation, Fix: Fix{Lat: lat, Lon: lon, AccuracyM: accuracyM, At: at}}
}
