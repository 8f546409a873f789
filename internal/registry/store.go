// Package registry persists the key→entry registry as a single JSON
// document, rewritten atomically on every upsert.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/econradar/autodiscovery/internal/discovery"
)

// SchemaVersion is written into the document's _metadata block.
const SchemaVersion = "1"

// metadata is the document's reserved _metadata block; every other top
// level field is one source key's entry.
type metadata struct {
	UpdatedAt time.Time `json:"updated_at"`
	Version   string    `json:"version"`
}

// FileStore is a RegistryStore backed by one JSON file. A process-wide mutex
// serializes writers; each write lands via temp file and rename so readers
// never observe a partial document.
type FileStore struct {
	mu     sync.Mutex
	path   string
	clock  discovery.Clock
	logger *zap.Logger
}

// NewFileStore creates a store writing to path. The file need not exist yet.
func NewFileStore(path string, clock discovery.Clock, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("registry path is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, clock: clock, logger: logger}, nil
}

// Upsert replaces the entry for key wholesale and rewrites the document.
// Entries for other keys are preserved; a failed write leaves the previous
// document intact.
func (s *FileStore) Upsert(ctx context.Context, key string, entry discovery.RegistryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("registry key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[key] = entry

	if err := s.writeAtomic(entries); err != nil {
		return err
	}
	s.logger.Debug("registry entry upserted",
		zap.String("key", key),
		zap.String("status", string(entry.Status)),
		zap.String("version", entry.Version),
	)
	return nil
}

// Get returns the entry for key, reporting presence separately.
func (s *FileStore) Get(ctx context.Context, key string) (discovery.RegistryEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return discovery.RegistryEntry{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return discovery.RegistryEntry{}, false, err
	}
	entry, ok := entries[key]
	return entry, ok, nil
}

// List returns a copy of all entries.
func (s *FileStore) List(ctx context.Context) (map[string]discovery.RegistryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the document, tolerating a missing file (fresh registry).
func (s *FileStore) load() (map[string]discovery.RegistryEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]discovery.RegistryEntry), nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	entries := make(map[string]discovery.RegistryEntry, len(raw))
	for key, msg := range raw {
		if key == "_metadata" {
			continue
		}
		var entry discovery.RegistryEntry
		if err := json.Unmarshal(msg, &entry); err != nil {
			return nil, fmt.Errorf("parse registry entry %q: %w", key, err)
		}
		entries[key] = entry
	}
	return entries, nil
}

// writeAtomic marshals the full document to a temp file in the registry's
// directory and renames it over the target.
func (s *FileStore) writeAtomic(entries map[string]discovery.RegistryEntry) error {
	doc := make(map[string]any, len(entries)+1)
	doc["_metadata"] = metadata{
		UpdatedAt: s.clock.Now().UTC(),
		Version:   SchemaVersion,
	}
	for key, entry := range entries {
		doc[key] = entry
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp registry: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
