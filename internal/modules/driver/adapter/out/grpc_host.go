package out

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	driverrpc "jogtrack/internal/modules/driver/adapter/out/rpc"
	"jogtrack/internal/modules/driver/domain"
	driverout "jogtrack/internal/modules/driver/port/out"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

const (
	defaultStartTimeout = 3 * time.Second
	defaultCallTimeout  = 5 * time.Second
	// a permission prompt waits on the user
	permissionTimeout = 2 * time.Minute
)

type connection struct {
	client *plugin.Client
	rpc    driverrpc.SensorDriverClient
	binary string
	sha256 string
}

// GRPCHost keeps one running driver process per manifest name and reuses it for every
// call, because sensors are polled several times per second.
type GRPCHost struct {
	logger hclog.Logger

	mu    sync.Mutex
	conns map[string]*connection
}

func NewGRPCHost(logger hclog.Logger) driverout.Host {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GRPCHost{logger: logger.Named("driver-host"), conns: map[string]*connection{}}
}

// CheckLifecycle starts a throwaway process so a broken binary cannot poison the cache.
func (h *GRPCHost) CheckLifecycle(ctx context.Context, manifest domain.Manifest) error {
	conn, err := h.start(manifest)
	if err != nil {
		return err
	}
	defer conn.client.Kill()

	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()
	if _, err := conn.rpc.GetMetadata(callCtx); err != nil {
		return fmt.Errorf("get metadata: %w", err)
	}
	return nil
}

func (h *GRPCHost) GetMetadata(ctx context.Context, manifest domain.Manifest) (domain.Metadata, error) {
	client, err := h.connect(manifest)
	if err != nil {
		return domain.Metadata{}, err
	}
	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()

	meta, err := client.GetMetadata(callCtx)
	if err != nil {
		h.evictOnExit(manifest)
		return domain.Metadata{}, fmt.Errorf("get metadata: %w", err)
	}
	capabilities := make([]domain.Capability, 0, len(meta.Capabilities))
	for _, capability := range meta.Capabilities {
		capabilities = append(capabilities, domain.Capability(capability))
	}
	return domain.Metadata{Name: meta.Name, Version: meta.Version, Capabilities: capabilities}, nil
}

func (h *GRPCHost) CheckPermission(ctx context.Context, manifest domain.Manifest, permission string) (bool, error) {
	client, err := h.connect(manifest)
	if err != nil {
		return false, err
	}
	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()
	response, err := client.CheckPermission(callCtx, &driverrpc.PermissionRequest{Permission: permission})
	if err != nil {
		h.evictOnExit(manifest)
		return false, fmt.Errorf("check permission: %w", err)
	}
	return response.Granted, nil
}

func (h *GRPCHost) RequestPermission(ctx context.Context, manifest domain.Manifest, permission string) (bool, error) {
	client, err := h.connect(manifest)
	if err != nil {
		return false, err
	}
	callCtx, cancel := callContext(ctx, permissionTimeout)
	defer cancel()
	response, err := client.RequestPermission(callCtx, &driverrpc.PermissionRequest{Permission: permission})
	if err != nil {
		h.evictOnExit(manifest)
		return false, fmt.Errorf("request permission: %w", err)
	}
	return response.Granted, nil
}

func (h *GRPCHost) ReadSamples(ctx context.Context, manifest domain.Manifest, cursor string, limit int) (domain.Batch, error) {
	client, err := h.connect(manifest)
	if err != nil {
		return domain.Batch{}, err
	}
	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()
	response, err := client.ReadSamples(callCtx, &driverrpc.ReadSamplesRequest{Cursor: cursor, Max: int32(limit)})
	if err != nil {
		h.evictOnExit(manifest)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return domain.Batch{}, fmt.Errorf("%w: read samples from %s", domain.ErrDriverTimeout, manifest.Name)
		}
		return domain.Batch{}, fmt.Errorf("read samples: %w", err)
	}
	batch := domain.Batch{NextCursor: response.NextCursor, Exhausted: response.Exhausted, Readings: make([]domain.Reading, 0, len(response.Samples))}
	for _, sample := range response.Samples {
		batch.Readings = append(batch.Readings, domain.Reading{
			At:        sample.At,
			Kind:      domain.ReadingKind(sample.Kind),
			RawSteps:  sample.RawSteps,
			Lat:       sample.Lat,
			Lon:       sample.Lon,
			AccuracyM: sample.AccuracyM,
		})
	}
	return batch, nil
}

// Close kills every cached driver process.
func (h *GRPCHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, conn := range h.conns {
		conn.client.Kill()
		delete(h.conns, name)
	}
	return nil
}

func (h *GRPCHost) connect(manifest domain.Manifest) (driverrpc.SensorDriverClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[manifest.Name]; ok {
		if !conn.client.Exited() && conn.binary == manifest.Binary && conn.sha256 == manifest.SHA256 {
			return conn.rpc, nil
		}
		conn.client.Kill()
		delete(h.conns, manifest.Name)
	}
	conn, err := h.start(manifest)
	if err != nil {
		return nil, err
	}
	h.conns[manifest.Name] = conn
	h.logger.Debug("driver started", "driver", manifest.Name, "version", manifest.Version)
	return conn.rpc, nil
}

// evictOnExit drops a cached connection whose process died so the next call restarts it.
func (h *GRPCHost) evictOnExit(manifest domain.Manifest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[manifest.Name]; ok && conn.client.Exited() {
		h.logger.Warn("driver exited", "driver", manifest.Name)
		delete(h.conns, manifest.Name)
	}
}

func (h *GRPCHost) start(manifest domain.Manifest) (*connection, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  driverrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          driverrpc.PluginMap(nil),
		Cmd:              exec.Command(manifest.Binary),
		Managed:          true,
		StartTimeout:     defaultStartTimeout,
		Logger:           h.logger.Named(manifest.Name),
	})
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start driver client: %w", err)
	}
	raw, err := rpcClient.Dispense(driverrpc.PluginMapKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense driver: %w", err)
	}
	typed, ok := raw.(driverrpc.SensorDriverClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("driver rpc client type mismatch")
	}
	return &connection{client: client, rpc: typed, binary: manifest.Binary, sha256: manifest.SHA256}, nil
}

func callContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
