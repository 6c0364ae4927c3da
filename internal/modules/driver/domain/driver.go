package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

type Capability string

const (
	CapabilityStepCounter Capability = "step_counter"
	CapabilityLocation    Capability = "location"
	CapabilityPermissions Capability = "permissions"
)

var (
	ErrDriverDisabled    = errors.New("driver is disabled")
	ErrDriverNotFound    = errors.New("driver not found")
	ErrChecksumMismatch  = errors.New("driver checksum mismatch")
	ErrCapabilityMissing = errors.New("driver capability missing")
	ErrDriverTimeout     = errors.New("driver timeout")
)

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

type Manifest struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Binary       string       `json:"binary"`
	SHA256       string       `json:"sha256"`
	Enabled      bool         `json:"enabled"`
	Capabilities []Capability `json:"capabilities"`
}

func (m Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("driver name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("driver version is required")
	}
	if m.Binary == "" {
		return fmt.Errorf("driver binary path is required")
	}
	if !sha256Pattern.MatchString(m.SHA256) {
		return fmt.Errorf("driver sha256 must be lowercase 64-char hex")
	}
	if len(m.Capabilities) == 0 {
		return fmt.Errorf("driver capabilities are required")
	}
	seen := map[Capability]struct{}{}
	for _, capability := range m.Capabilities {
		if err := capability.Validate(); err != nil {
			return err
		}
		if _, ok := seen[capability]; ok {
			return fmt.Errorf("duplicate capability: %s", capability)
		}
		seen[capability] = struct{}{}
	}
	return nil
}

func (c Capability) Validate() error {
	switch c {
	case CapabilityStepCounter, CapabilityLocation, CapabilityPermissions:
		return nil
	default:
		return fmt.Errorf("unknown capability: %s", c)
	}
}

func (m Manifest) HasCapability(capability Capability) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasSensor reports whether the driver produces any readings at all.
func (m Manifest) HasSensor() bool {
	return m.HasCapability(CapabilityStepCounter) || m.HasCapability(CapabilityLocation)
}

type Metadata struct {
	Name         string
	Version      string
	Capabilities []Capability
}

type ReadingKind string

const (
	ReadingStepCount ReadingKind = "step_count"
	ReadingLocation  ReadingKind = "location"
)

func (k ReadingKind) Validate() error {
	switch k {
	case ReadingStepCount, ReadingLocation:
		return nil
	default:
		return fmt.Errorf("unknown reading kind: %s", k)
	}
}

// Reading is one raw value reported by a driver. RawSteps is a cumulative counter.
type Reading struct {
	At        time.Time
	Kind      ReadingKind
	RawSteps  int64
	Lat       float64
	Lon       float64
	AccuracyM float64
}

// Batch is one ReadSamples page. Cursor is opaque to the host and handed back on the
// next read.
type Batch struct {
	Readings   []Reading
	NextCursor string
	Exhausted  bool
}
