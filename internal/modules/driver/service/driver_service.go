package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"jogtrack/internal/modules/driver/domain"
	"jogtrack/internal/modules/driver/dto"
	driverout "jogtrack/internal/modules/driver/port/out"
)

const maxBatch = 512

type DriverService struct {
	store driverout.ManifestStore
	host  driverout.Host

	mu       sync.Mutex
	verified map[string]string
}

func NewDriverService(store driverout.ManifestStore, host driverout.Host) *DriverService {
	return &DriverService{store: store, host: host, verified: map[string]string{}}
}

func (s *DriverService) List(ctx context.Context) ([]dto.DriverInfo, error) {
	manifests, err := s.loadValidated(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.DriverInfo, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, dto.DriverInfo{Name: m.Name, Version: m.Version, Enabled: m.Enabled, Binary: m.Binary, Capabilities: capabilityNames(m.Capabilities)})
	}
	return out, nil
}

func (s *DriverService) Doctor(ctx context.Context) ([]dto.DoctorResult, error) {
	manifests, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]dto.DoctorResult, 0, len(manifests))
	for _, m := range manifests {
		result := dto.DoctorResult{Name: m.Name}
		if err := m.Validate(); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		result.BinaryReachable = fileExists(m.Binary)
		if !result.BinaryReachable {
			result.Error = fmt.Sprintf("binary does not exist: %s", m.Binary)
			results = append(results, result)
			continue
		}
		result.ChecksumValid = checksumMatches(m.Binary, m.SHA256) == nil
		if !result.ChecksumValid {
			result.Error = "checksum mismatch"
			results = append(results, result)
			continue
		}
		if m.Enabled && s.host != nil {
			if err := s.host.CheckLifecycle(ctx, m); err != nil {
				result.Error = err.Error()
			} else {
				result.LifecycleOK = true
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *DriverService) Metadata(ctx context.Context, driverName string) (dto.MetadataOutput, error) {
	manifest, err := s.getRunnableManifest(ctx, driverName, "")
	if err != nil {
		return dto.MetadataOutput{}, err
	}
	meta, err := s.host.GetMetadata(ctx, manifest)
	if err != nil {
		return dto.MetadataOutput{}, wrapTimeout(err, driverName)
	}
	return dto.MetadataOutput{Name: meta.Name, Version: meta.Version, Capabilities: capabilityNames(meta.Capabilities)}, nil
}

func (s *DriverService) CheckPermission(ctx context.Context, input dto.PermissionInput) (dto.PermissionOutput, error) {
	manifest, err := s.getPermissionManifest(ctx, input)
	if err != nil {
		return dto.PermissionOutput{}, err
	}
	granted, err := s.host.CheckPermission(ctx, manifest, input.Permission)
	if err != nil {
		return dto.PermissionOutput{}, wrapTimeout(err, input.Driver)
	}
	return dto.PermissionOutput{Driver: input.Driver, Permission: input.Permission, Granted: granted}, nil
}

func (s *DriverService) RequestPermission(ctx context.Context, input dto.PermissionInput) (dto.PermissionOutput, error) {
	manifest, err := s.getPermissionManifest(ctx, input)
	if err != nil {
		return dto.PermissionOutput{}, err
	}
	granted, err := s.host.RequestPermission(ctx, manifest, input.Permission)
	if err != nil {
		return dto.PermissionOutput{}, wrapTimeout(err, input.Driver)
	}
	return dto.PermissionOutput{Driver: input.Driver, Permission: input.Permission, Granted: granted}, nil
}

func (s *DriverService) ReadSamples(ctx context.Context, input dto.ReadSamplesInput) (dto.ReadSamplesOutput, error) {
	manifest, err := s.getRunnableManifest(ctx, input.Driver, "")
	if err != nil {
		return dto.ReadSamplesOutput{}, err
	}
	if !manifest.HasSensor() {
		return dto.ReadSamplesOutput{}, fmt.Errorf("%w: %s has neither %s nor %s", domain.ErrCapabilityMissing, input.Driver, domain.CapabilityStepCounter, domain.CapabilityLocation)
	}
	limit := input.Max
	if limit <= 0 || limit > maxBatch {
		limit = maxBatch
	}
	batch, err := s.host.ReadSamples(ctx, manifest, input.Cursor, limit)
	if err != nil {
		return dto.ReadSamplesOutput{}, wrapTimeout(err, input.Driver)
	}
	out := dto.ReadSamplesOutput{NextCursor: batch.NextCursor, Exhausted: batch.Exhausted, Samples: make([]dto.SampleOutput, 0, len(batch.Readings))}
	for _, reading := range batch.Readings {
		if err := reading.Kind.Validate(); err != nil {
			return dto.ReadSamplesOutput{}, fmt.Errorf("driver %s: %w", input.Driver, err)
		}
		out.Samples = append(out.Samples, dto.SampleOutput{
			At:        reading.At,
			Kind:      string(reading.Kind),
			RawSteps:  reading.RawSteps,
			Lat:       reading.Lat,
			Lon:       reading.Lon,
			AccuracyM: reading.AccuracyM,
		})
	}
	return out, nil
}

func (s *DriverService) Close(_ context.Context) error {
	if s.host == nil {
		return nil
	}
	return s.host.Close()
}

func (s *DriverService) getPermissionManifest(ctx context.Context, input dto.PermissionInput) (domain.Manifest, error) {
	if input.Permission == "" {
		return domain.Manifest{}, fmt.Errorf("permission is required")
	}
	return s.getRunnableManifest(ctx, input.Driver, domain.CapabilityPermissions)
}

func (s *DriverService) loadValidated(ctx context.Context) ([]domain.Manifest, error) {
	manifests, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	seenNames := map[string]struct{}{}
	for _, manifest := range manifests {
		if err := manifest.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seenNames[manifest.Name]; ok {
			return nil, fmt.Errorf("duplicate driver name: %s", manifest.Name)
		}
		seenNames[manifest.Name] = struct{}{}
	}
	return manifests, nil
}

// getRunnableManifest resolves an enabled driver whose binary matches its checksum.
// The checksum is verified once per binary and digest, since sensors are polled.
func (s *DriverService) getRunnableManifest(ctx context.Context, driverName string, requiredCapability domain.Capability) (domain.Manifest, error) {
	if s.host == nil {
		return domain.Manifest{}, fmt.Errorf("driver host is not configured")
	}
	manifests, err := s.loadValidated(ctx)
	if err != nil {
		return domain.Manifest{}, err
	}
	manifest := domain.Manifest{}
	found := false
	for _, item := range manifests {
		if item.Name == driverName {
			manifest = item
			found = true
			break
		}
	}
	if !found {
		return domain.Manifest{}, fmt.Errorf("%w: %q", domain.ErrDriverNotFound, driverName)
	}
	if !manifest.Enabled {
		return domain.Manifest{}, fmt.Errorf("%w: %s", domain.ErrDriverDisabled, driverName)
	}
	if requiredCapability != "" && !manifest.HasCapability(requiredCapability) {
		return domain.Manifest{}, fmt.Errorf("%w: %s", domain.ErrCapabilityMissing, requiredCapability)
	}
	if err := s.verify(manifest); err != nil {
		return domain.Manifest{}, err
	}
	return manifest, nil
}

func (s *DriverService) verify(manifest domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verified[manifest.Binary] == manifest.SHA256 {
		return nil
	}
	if err := checksumMatches(manifest.Binary, manifest.SHA256); err != nil {
		return err
	}
	s.verified[manifest.Binary] = manifest.SHA256
	return nil
}

func wrapTimeout(err error, driverName string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", domain.ErrDriverTimeout, driverName, err)
	}
	return err
}

func capabilityNames(capabilities []domain.Capability) []string {
	out := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		out = append(out, string(c))
	}
	return out
}

func checksumMatches(path string, expected string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read driver binary: %w", err)
	}
	hash := sha256.Sum256(payload)
	actual := hex.EncodeToString(hash[:])
	if actual != expected {
		return fmt.Errorf("%w: %s", domain.ErrChecksumMismatch, filepath.Base(path))
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
