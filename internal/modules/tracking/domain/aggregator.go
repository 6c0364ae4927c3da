package domain

import "fmt"

// Delta is what one accepted sample adds to the active session.
type Delta struct {
	Steps  int64
	Meters float64
}

type AggregatorConfig struct {
	MaxSpeedMPS  float64
	MaxAccuracyM float64
}

// Aggregator turns raw samples into incremental step and distance deltas. It keeps no
// state of its own; everything it needs between samples lives in the Cursor.
type Aggregator struct {
	cfg AggregatorConfig
}

func NewAggregator(cfg AggregatorConfig) Aggregator {
	return Aggregator{cfg: cfg}
}

// Apply returns the delta for sample and the cursor to persist with it. A rejected
// sample returns an error and the cursor unchanged.
func (a Aggregator) Apply(cursor Cursor, sample Sample) (Delta, Cursor, error) {
	if err := sample.Kind.Validate(); err != nil {
		return Delta{}, cursor, err
	}
	switch sample.Kind {
	case SampleStepCount:
		return a.applySteps(cursor, sample.RawSteps)
	default:
		return a.applyFix(cursor, sample)
	}
}

func (a Aggregator) applySteps(cursor Cursor, raw int64) (Delta, Cursor, error) {
	if raw < 0 {
		return Delta{}, cursor, fmt.Errorf("%w: %d", ErrNegativeCount, raw)
	}
	next := cursor
	next.LastRawCount = raw
	next.HasBaseline = true
	if !cursor.HasBaseline {
		return Delta{}, next, nil
	}
	if raw < cursor.LastRawCount {
		// counter reset (device reboot): everything counted since the reset is new
		return Delta{Steps: raw}, next, nil
	}
	return Delta{Steps: raw - cursor.LastRawCount}, next, nil
}

func (a Aggregator) applyFix(cursor Cursor, sample Sample) (Delta, Cursor, error) {
	fix := sample.Fix
	if fix.At.IsZero() {
		fix.At = sample.At
	}
	if err := fix.Validate(); err != nil {
		return Delta{}, cursor, err
	}
	if a.cfg.MaxAccuracyM > 0 && fix.AccuracyM > a.cfg.MaxAccuracyM {
		return Delta{}, cursor, fmt.Errorf("%w: %.1fm > %.1fm", ErrInaccurateFix, fix.AccuracyM, a.cfg.MaxAccuracyM)
	}
	next := cursor
	accepted := fix
	next.LastFix = &accepted
	if cursor.LastFix == nil {
		return Delta{}, next, nil
	}
	last := *cursor.LastFix
	meters := HaversineMeters(last.Lat, last.Lon, fix.Lat, fix.Lon)
	if meters == 0 {
		return Delta{}, next, nil
	}
	elapsed := fix.At.Sub(last.At).Seconds()
	if elapsed <= 0 {
		return Delta{}, cursor, fmt.Errorf("%w: %.1fm moved in %.3fs", ErrImplausibleSpeed, meters, elapsed)
	}
	if speed := meters / elapsed; speed > a.cfg.MaxSpeedMPS {
		return Delta{}, cursor, fmt.Errorf("%w: %.1fm/s > %.1fm/s", ErrImplausibleSpeed, speed, a.cfg.MaxSpeedMPS)
	}
	return Delta{Meters: meters}, next, nil
}
