package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	driverrpc "jogtrack/internal/modules/driver/adapter/out/rpc"

	"github.com/hashicorp/go-plugin"
)

const (
	envReplayFile    = "JOGTRACK_REPLAY_FILE"
	envReplayGranted = "JOGTRACK_REPLAY_GRANTED"

	stepsPerTenSeconds = 28
	speedMPS           = 2.9
	loopRadiusM        = 400.0
	metersPerDegree    = 111320.0
	fixEvery           = time.Second
)

var (
	originLat = 52.5163
	originLon = 13.3777

	// the synthetic step counter behaves like a counter that has been running since epoch
	epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

type server struct {
	now     func() time.Time
	granted map[string]bool
	all     bool

	mu      sync.Mutex
	replay  []driverrpc.Sample
	started time.Time
}

func newServer(now func() time.Time) (*server, error) {
	s := &server{now: now, granted: map[string]bool{}}
	s.parseGranted(os.Getenv(envReplayGranted))
	if path := os.Getenv(envReplayFile); path != "" {
		samples, err := loadReplay(path)
		if err != nil {
			return nil, err
		}
		s.replay = samples
		s.started = now()
	}
	return s, nil
}

func (s *server) parseGranted(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "all" {
		s.all = true
		return
	}
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			s.granted[name] = true
		}
	}
}

func (s *server) GetMetadata(_ context.Context, _ *driverrpc.Empty) (*driverrpc.Metadata, error) {
	return &driverrpc.Metadata{
		Name:         "replay",
		Version:      "1.0.0",
		Capabilities: []string{"step_counter", "location", "permissions"},
	}, nil
}

func (s *server) CheckPermission(_ context.Context, in *driverrpc.PermissionRequest) (*driverrpc.PermissionResponse, error) {
	return &driverrpc.PermissionResponse{Granted: s.all || s.granted[in.Permission]}, nil
}

// RequestPermission cannot prompt anyone, so it answers like CheckPermission.
func (s *server) RequestPermission(ctx context.Context, in *driverrpc.PermissionRequest) (*driverrpc.PermissionResponse, error) {
	return s.CheckPermission(ctx, in)
}

func (s *server) ReadSamples(_ context.Context, in *driverrpc.ReadSamplesRequest) (*driverrpc.ReadSamplesResponse, error) {
	if s.replay != nil {
		return s.readReplay(in)
	}
	return s.readSynthetic(in)
}

// readReplay re-times the file so its first sample happens when the driver started and
// hands out only samples whose time has come. The cursor is the next line index.
func (s *server) readReplay(in *driverrpc.ReadSamplesRequest) (*driverrpc.ReadSamplesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := 0
	if in.Cursor != "" {
		parsed, err := strconv.Atoi(in.Cursor)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid cursor %q", in.Cursor)
		}
		next = parsed
	}
	now := s.now()
	offset := s.started.Sub(s.replay[0].At)
	out := &driverrpc.ReadSamplesResponse{}
	for next < len(s.replay) && (in.Max <= 0 || int32(len(out.Samples)) < in.Max) {
		sample := s.replay[next]
		sample.At = sample.At.Add(offset)
		if sample.At.After(now) {
			break
		}
		out.Samples = append(out.Samples, sample)
		next++
	}
	out.NextCursor = strconv.Itoa(next)
	out.Exhausted = next >= len(s.replay)
	return out, nil
}

// readSynthetic derives every value from the wall clock, so a restarted driver continues
// the same counter and track. The cursor is the time of the last emitted fix.
func (s *server) readSynthetic(in *driverrpc.ReadSamplesRequest) (*driverrpc.ReadSamplesResponse, error) {
	now := s.now().UTC()
	elapsed := now.Sub(epoch)
	out := &driverrpc.ReadSamplesResponse{
		Samples:    []driverrpc.Sample{{At: now, Kind: "step_count", RawSteps: elapsed.Milliseconds() * stepsPerTenSeconds / 10000}},
		NextCursor: in.Cursor,
	}
	var lastFix time.Time
	if in.Cursor != "" {
		nanos, err := strconv.ParseInt(in.Cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q", in.Cursor)
		}
		lastFix = time.Unix(0, nanos).UTC()
	}
	if (in.Max <= 0 || in.Max > 1) && now.Sub(lastFix) >= fixEvery {
		lat, lon := positionOnLoop(elapsed.Seconds())
		out.Samples = append(out.Samples, driverrpc.Sample{At: now, Kind: "location", Lat: lat, Lon: lon, AccuracyM: 5})
		out.NextCursor = strconv.FormatInt(now.UnixNano(), 10)
	}
	return out, nil
}

func positionOnLoop(elapsedSeconds float64) (float64, float64) {
	theta := math.Mod(speedMPS*elapsedSeconds/loopRadiusM, 2*math.Pi)
	lat := originLat + loopRadiusM*math.Cos(theta)/metersPerDegree
	lon := originLon + loopRadiusM*math.Sin(theta)/(metersPerDegree*math.Cos(originLat*math.Pi/180))
	return lat, lon
}

func loadReplay(path string) ([]driverrpc.Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()
	samples := []driverrpc.Sample{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sample := driverrpc.Sample{}
		if err := json.Unmarshal([]byte(line), &sample); err != nil {
			return nil, fmt.Errorf("decode replay sample %d: %w", len(samples)+1, err)
		}
		if len(samples) > 0 && sample.At.Before(samples[len(samples)-1].At) {
			return nil, fmt.Errorf("replay samples must be in time order (sample %d)", len(samples)+1)
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan replay file: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("replay file %s has no samples", path)
	}
	return samples, nil
}

func main() {
	impl, err := newServer(time.Now)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: driverrpc.HandshakeConfig,
		Plugins:         driverrpc.PluginMap(impl),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
