package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leadbridge/backend/internal/core/ports"
	"github.com/leadbridge/backend/internal/domain"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
)

// fileStore persists the panel snapshot as a single JSON document, written
// atomically via rename. Timestamps round-trip as RFC3339 through the
// standard time.Time JSON encoding.
type fileStore struct {
	path string
	log  *logger.Logger
}

func NewFileStore(path string, log *logger.Logger) ports.SnapshotStore {
	if path == "" {
		path = filepath.Join("data", "tasks.json")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &fileStore{path: path, log: log}
}

func (s *fileStore) Save(ctx context.Context, snap *domain.PanelSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load returns nil without error when no snapshot exists yet.
func (s *fileStore) Load(ctx context.Context) (*domain.PanelSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap domain.PanelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt snapshot should not block startup; start empty and log.
		s.log.Errorw("snapshot_corrupt", "path", s.path, "error", err)
		return nil, nil
	}
	return &snap, nil
}
