package out_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	driverout "jogtrack/internal/modules/driver/adapter/out"
	"jogtrack/internal/modules/driver/domain"
)

func TestGRPCHostIntegrationReplayDriver(t *testing.T) {
	binPath, checksum := buildReplayDriver(t)
	manifest := domain.Manifest{
		Name:         "replay",
		Version:      "1.0.0",
		Binary:       binPath,
		SHA256:       checksum,
		Enabled:      true,
		Capabilities: []domain.Capability{domain.CapabilityStepCounter, domain.CapabilityLocation, domain.CapabilityPermissions},
	}

	host := driverout.NewGRPCHost(nil)
	defer host.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := host.CheckLifecycle(ctx, manifest); err != nil {
		t.Fatalf("check lifecycle: %v", err)
	}
	metadata, err := host.GetMetadata(ctx, manifest)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if metadata.Name != "replay" || len(metadata.Capabilities) != 3 {
		t.Fatalf("unexpected metadata: %+v", metadata)
	}
	granted, err := host.RequestPermission(ctx, manifest, "activity_recognition")
	if err != nil || !granted {
		t.Fatalf("request permission: granted=%v err=%v", granted, err)
	}
	first, err := host.ReadSamples(ctx, manifest, "", 8)
	if err != nil {
		t.Fatalf("read samples: %v", err)
	}
	if len(first.Readings) == 0 || first.Readings[0].Kind != domain.ReadingStepCount {
		t.Fatalf("expected a step reading first, got %+v", first.Readings)
	}
	second, err := host.ReadSamples(ctx, manifest, first.NextCursor, 8)
	if err != nil {
		t.Fatalf("read samples again: %v", err)
	}
	if second.Readings[0].RawSteps < first.Readings[0].RawSteps {
		t.Fatalf("step counter went backwards: %d -> %d", first.Readings[0].RawSteps, second.Readings[0].RawSteps)
	}
}

func buildReplayDriver(t *testing.T) (string, string) {
	t.Helper()
	tmp := t.TempDir()
	binPath := filepath.Join(tmp, "replay-driver")
	cmd := exec.Command("go", "build", "-o", binPath, "./plugins/replay")
	cmd.Dir = repositoryRoot(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build replay driver: %v\n%s", err, string(out))
	}
	payload, err := os.ReadFile(binPath)
	if err != nil {
		t.Fatalf("read built driver: %v", err)
	}
	hash := sha256.Sum256(payload)
	return binPath, hex.EncodeToString(hash[:])
}

func repositoryRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "../../../../../"))
}
