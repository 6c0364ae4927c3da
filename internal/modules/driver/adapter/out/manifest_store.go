package out

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"jogtrack/internal/modules/driver/domain"
	driverout "jogtrack/internal/modules/driver/port/out"
)

// FileManifestStore reads drivers.json. Every sensor poll resolves its driver through
// here, so the decoded manifests are reused until the file changes size or mtime.
type FileManifestStore struct {
	dataDir string
	path    string

	mu     sync.Mutex
	loaded bool
	size   int64
	mtime  time.Time
	cached []domain.Manifest
}

// NewFileManifestStore reads manifests from path. Relative binaries resolve against
// dataDir.
func NewFileManifestStore(dataDir, path string) driverout.ManifestStore {
	return &FileManifestStore{dataDir: dataDir, path: path}
}

func (s *FileManifestStore) Load(_ context.Context) ([]domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.loaded, s.cached = false, nil
		return []domain.Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat driver manifests: %w", err)
	}
	if !s.loaded || info.Size() != s.size || !info.ModTime().Equal(s.mtime) {
		manifests, err := s.decode()
		if err != nil {
			return nil, err
		}
		s.cached, s.size, s.mtime, s.loaded = manifests, info.Size(), info.ModTime(), true
	}

	out := make([]domain.Manifest, len(s.cached))
	for i, m := range s.cached {
		m.Capabilities = slices.Clone(m.Capabilities)
		out[i] = m
	}
	return out, nil
}

func (s *FileManifestStore) decode() ([]domain.Manifest, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read driver manifests: %w", err)
	}
	manifests := []domain.Manifest{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&manifests); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(s.path), err)
	}
	for i, m := range manifests {
		if m.Binary != "" && !filepath.IsAbs(m.Binary) {
			manifests[i].Binary = filepath.Join(s.dataDir, m.Binary)
		}
	}
	return manifests, nil
}
