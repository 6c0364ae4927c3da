package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	driverout "jogtrack/internal/modules/driver/adapter/out"
	"jogtrack/internal/modules/driver/domain"
	"jogtrack/internal/modules/driver/dto"
	"jogtrack/internal/modules/driver/service"
)

type fakeManifestStore struct {
	manifests []domain.Manifest
}

func (s fakeManifestStore) Load(context.Context) ([]domain.Manifest, error) {
	return s.manifests, nil
}

type fakeHost struct {
	batch       domain.Batch
	granted     map[string]bool
	lifecycle   error
	reads       int
	lastLimit   int
	closed      bool
	lastCursor  string
	permissions []string
}

func (h *fakeHost) CheckLifecycle(context.Context, domain.Manifest) error { return h.lifecycle }
func (h *fakeHost) GetMetadata(_ context.Context, m domain.Manifest) (domain.Metadata, error) {
	return domain.Metadata{Name: m.Name, Version: m.Version, Capabilities: m.Capabilities}, nil
}
func (h *fakeHost) CheckPermission(_ context.Context, _ domain.Manifest, permission string) (bool, error) {
	return h.granted[permission], nil
}
func (h *fakeHost) RequestPermission(_ context.Context, _ domain.Manifest, permission string) (bool, error) {
	h.permissions = append(h.permissions, permission)
	return h.granted[permission], nil
}
func (h *fakeHost) ReadSamples(_ context.Context, _ domain.Manifest, cursor string, limit int) (domain.Batch, error) {
	h.reads++
	h.lastCursor = cursor
	h.lastLimit = limit
	return h.batch, nil
}
func (h *fakeHost) Close() error {
	h.closed = true
	return nil
}

func writeBinary(t *testing.T, dir string) (string, string) {
	t.Helper()
	path := filepath.Join(dir, "replay-driver")
	payload := []byte("#!/bin/sh\necho replay\n")
	if err := os.WriteFile(path, payload, 0o755); err != nil {
		t.Fatalf("write driver binary: %v", err)
	}
	hash := sha256.Sum256(payload)
	return path, hex.EncodeToString(hash[:])
}

func manifestFor(t *testing.T, capabilities ...domain.Capability) domain.Manifest {
	t.Helper()
	bin, checksum := writeBinary(t, t.TempDir())
	return domain.Manifest{Name: "replay", Version: "1.0.0", Binary: bin, SHA256: checksum, Enabled: true, Capabilities: capabilities}
}

func TestDoctorDetectsChecksumMismatch(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	bin, _ := writeBinary(t, tmp)
	manifests := []domain.Manifest{{
		Name:         "replay",
		Version:      "1.0.0",
		Binary:       bin,
		SHA256:       strings.Repeat("0", 64),
		Enabled:      true,
		Capabilities: []domain.Capability{domain.CapabilityStepCounter},
	}}
	svc := service.NewDriverService(fakeManifestStore{manifests: manifests}, &fakeHost{})
	results, err := svc.Doctor(context.Background())
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if len(results) != 1 || results[0].ChecksumValid || !results[0].BinaryReachable || results[0].Error != "checksum mismatch" {
		t.Fatalf("unexpected doctor result: %+v", results)
	}
}

func TestDoctorReportsMissingBinaryAndLifecycle(t *testing.T) {
	t.Parallel()
	good := manifestFor(t, domain.CapabilityStepCounter)
	missing := good
	missing.Name = "gone"
	missing.Binary = filepath.Join(t.TempDir(), "missing")
	svc := service.NewDriverService(fakeManifestStore{manifests: []domain.Manifest{good, missing}}, &fakeHost{})
	results, err := svc.Doctor(context.Background())
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if !results[0].LifecycleOK || !results[0].ChecksumValid {
		t.Fatalf("expected healthy driver, got %+v", results[0])
	}
	if results[1].BinaryReachable || !strings.Contains(results[1].Error, "binary does not exist") {
		t.Fatalf("expected missing binary, got %+v", results[1])
	}
}

func TestReadSamplesConvertsBatchAndClampsLimit(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	host := &fakeHost{batch: domain.Batch{
		Readings: []domain.Reading{
			{At: at, Kind: domain.ReadingStepCount, RawSteps: 500},
			{At: at, Kind: domain.ReadingLocation, Lat: 52.52, Lon: 13.405, AccuracyM: 4},
		},
		NextCursor: "2",
	}}
	svc := service.NewDriverService(fakeManifestStore{manifests: []domain.Manifest{manifestFor(t, domain.CapabilityStepCounter, domain.CapabilityLocation)}}, host)

	out, err := svc.ReadSamples(context.Background(), dto.ReadSamplesInput{Driver: "replay", Cursor: "0", Max: 100000})
	if err != nil {
		t.Fatalf("read samples: %v", err)
	}
	if len(out.Samples) != 2 || out.Samples[0].RawSteps != 500 || out.Samples[1].Kind != "location" || out.NextCursor != "2" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if host.lastLimit != 512 || host.lastCursor != "0" {
		t.Fatalf("expected clamped limit and passed cursor, got %d %q", host.lastLimit, host.lastCursor)
	}

	host.batch.Readings = []domain.Reading{{At: at, Kind: "gyro"}}
	if _, err := svc.ReadSamples(context.Background(), dto.ReadSamplesInput{Driver: "replay"}); err == nil {
		t.Fatalf("expected unknown reading kind to fail")
	}
}

func TestRunnableChecks(t *testing.T) {
	t.Parallel()
	permissionsOnly := manifestFor(t, domain.CapabilityPermissions)
	disabled := manifestFor(t, domain.CapabilityStepCounter)
	disabled.Name = "off"
	disabled.Enabled = false
	tampered := manifestFor(t, domain.CapabilityStepCounter)
	tampered.Name = "tampered"
	tampered.SHA256 = strings.Repeat("f", 64)
	host := &fakeHost{granted: map[string]bool{"activity_recognition": true}}
	svc := service.NewDriverService(fakeManifestStore{manifests: []domain.Manifest{permissionsOnly, disabled, tampered}}, host)
	ctx := context.Background()

	if _, err := svc.ReadSamples(ctx, dto.ReadSamplesInput{Driver: "replay"}); !errors.Is(err, domain.ErrCapabilityMissing) {
		t.Fatalf("expected missing sensor capability, got %v", err)
	}
	if _, err := svc.ReadSamples(ctx, dto.ReadSamplesInput{Driver: "off"}); !errors.Is(err, domain.ErrDriverDisabled) {
		t.Fatalf("expected disabled driver, got %v", err)
	}
	if _, err := svc.ReadSamples(ctx, dto.ReadSamplesInput{Driver: "tampered"}); !errors.Is(err, domain.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
	if _, err := svc.Metadata(ctx, "nobody"); !errors.Is(err, domain.ErrDriverNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	out, err := svc.RequestPermission(ctx, dto.PermissionInput{Driver: "replay", Permission: "activity_recognition"})
	if err != nil || !out.Granted {
		t.Fatalf("expected permission granted, got %+v err=%v", out, err)
	}
	if _, err := svc.CheckPermission(ctx, dto.PermissionInput{Driver: "replay"}); err == nil {
		t.Fatalf("expected empty permission to fail")
	}
	if host.reads != 0 {
		t.Fatalf("rejected drivers must not be read")
	}
}

func TestListRejectsDuplicateNamesAndCloseStopsHost(t *testing.T) {
	t.Parallel()
	m := manifestFor(t, domain.CapabilityStepCounter)
	host := &fakeHost{}
	svc := service.NewDriverService(fakeManifestStore{manifests: []domain.Manifest{m, m}}, host)
	if _, err := svc.List(context.Background()); err == nil || !strings.Contains(err.Error(), "duplicate driver name") {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
	if err := svc.Close(context.Background()); err != nil || !host.closed {
		t.Fatalf("expected host to be closed, err=%v", err)
	}
}

func TestDoctorWithFileManifestStore(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	svc := service.NewDriverService(driverout.NewFileManifestStore(base, filepath.Join(base, "drivers", "drivers.json")), nil)
	results, err := svc.Doctor(context.Background())
	if err != nil {
		t.Fatalf("doctor without manifests: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}
