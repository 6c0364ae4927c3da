package domain

import (
	"strings"
	"testing"
)

func validManifest() Manifest {
	return Manifest{
		Name:         "replay",
		Version:      "1.0.0",
		Binary:       "/tmp/replay",
		SHA256:       strings.Repeat("a", 64),
		Enabled:      true,
		Capabilities: []Capability{CapabilityStepCounter, CapabilityPermissions},
	}
}

func TestManifestValidate(t *testing.T) {
	t.Parallel()
	if err := validManifest().Validate(); err != nil {
		t.Fatalf("expected valid manifest: %v", err)
	}
	cases := map[string]func(*Manifest){
		"missing name":       func(m *Manifest) { m.Name = "" },
		"missing version":    func(m *Manifest) { m.Version = "" },
		"missing binary":     func(m *Manifest) { m.Binary = "" },
		"uppercase checksum": func(m *Manifest) { m.SHA256 = strings.Repeat("A", 64) },
		"no capabilities":    func(m *Manifest) { m.Capabilities = nil },
		"unknown capability": func(m *Manifest) { m.Capabilities = []Capability{"heart_rate"} },
		"duplicate capability": func(m *Manifest) {
			m.Capabilities = []Capability{CapabilityLocation, CapabilityLocation}
		},
	}
	for name, mutate := range cases {
		m := validManifest()
		mutate(&m)
		if err := m.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestManifestSensorCapabilities(t *testing.T) {
	t.Parallel()
	m := validManifest()
	if !m.HasSensor() || !m.HasCapability(CapabilityPermissions) || m.HasCapability(CapabilityLocation) {
		t.Fatalf("unexpected capability checks for %+v", m.Capabilities)
	}
	m.Capabilities = []Capability{CapabilityPermissions}
	if m.HasSensor() {
		t.Fatalf("permission-only driver has no sensor")
	}
}

func TestReadingKindValidate(t *testing.T) {
	t.Parallel()
	if err := ReadingLocation.Validate(); err != nil {
		t.Fatalf("location should be valid: %v", err)
	}
	if err := ReadingKind("gyro").Validate(); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
