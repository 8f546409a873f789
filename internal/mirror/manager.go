// Package mirror streams discovered files into the local mirror tree and,
// when configured, an object store.
package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/econradar/autodiscovery/internal/discovery"
)

// ErrObjectUpload marks an object-store upload failure. The filesystem copy
// is durable by the time uploads run, so callers may still register the
// entry without an object key.
var ErrObjectUpload = errors.New("object store upload failed")

// Config controls mirror destinations.
type Config struct {
	// Root is the mirrors directory; files land at <Root>/<key>/<version>/<filename>.
	Root string
	// ObjectPrefix prefixes object-store keys when a BlobStore is wired.
	ObjectPrefix string
	// ContentType is sent on object uploads.
	ContentType string
}

// Manager implements the all-or-nothing mirror transaction.
type Manager struct {
	cfg    Config
	probe  discovery.ProbeClient
	blobs  discovery.BlobStore
	logger *zap.Logger
}

// New constructs a Manager. blobs may be nil to disable object uploads.
func New(cfg Config, probe discovery.ProbeClient, blobs discovery.BlobStore, logger *zap.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, errors.New("mirror root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, probe: probe, blobs: blobs, logger: logger}, nil
}

// Mirror downloads url once, hashing the stream while writing it to a
// temporary file, then renames the temp file into place. On any mid-stream
// failure the temp file is removed and no file appears at the final path.
// A failed object upload returns a MirrorResult (fs copy is durable) joined
// with ErrObjectUpload.
func (m *Manager) Mirror(ctx context.Context, url, key, version, filename string) (discovery.MirrorResult, error) {
	finalPath, err := m.finalPath(key, version, filename)
	if err != nil {
		return discovery.MirrorResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o750); err != nil {
		return discovery.MirrorResult{}, fmt.Errorf("create mirror dir: %w", err)
	}

	res, body, err := m.probe.GetStream(ctx, url)
	if err != nil {
		return discovery.MirrorResult{}, fmt.Errorf("open download stream: %w", err)
	}
	defer body.Close() //nolint:errcheck // read side, best effort
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return discovery.MirrorResult{}, fmt.Errorf("download %s: status %d", url, res.StatusCode)
	}

	sum, written, err := m.writeAtomic(finalPath, body)
	if err != nil {
		return discovery.MirrorResult{}, err
	}

	result := discovery.MirrorResult{
		StoredPath: finalPath,
		SHA256:     sum,
		Bytes:      written,
	}
	m.logger.Info("mirrored file",
		zap.String("key", key),
		zap.String("path", finalPath),
		zap.String("sha256", sum),
		zap.Int64("bytes", written),
	)

	if m.blobs != nil {
		objectKey, upErr := m.upload(ctx, finalPath, key, version, filename)
		if upErr != nil {
			m.logger.Warn("object upload failed, filesystem copy kept",
				zap.String("key", key), zap.Error(upErr))
			return result, fmt.Errorf("%w: %v", ErrObjectUpload, upErr)
		}
		result.ObjectKey = objectKey
	}
	return result, nil
}

// writeAtomic streams body into a temp file in the destination directory,
// hashing the same bytes, then fsyncs and renames. The hash therefore covers
// exactly the bytes that became durable.
func (m *Manager) writeAtomic(finalPath string, body io.Reader) (string, int64, error) {
	dir := filepath.Dir(finalPath)
	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), body)
	if err != nil {
		cleanup()
		return "", 0, fmt.Errorf("stream download: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", 0, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("rename into place: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

func (m *Manager) upload(ctx context.Context, localPath, key, version, filename string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open mirrored file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	objectKey := joinObjectKey(m.cfg.ObjectPrefix, key, version, filename)
	if _, err := m.blobs.PutObject(ctx, objectKey, m.cfg.ContentType, f); err != nil {
		return "", err
	}
	return objectKey, nil
}

// finalPath builds <root>/<key>/<version>/<filename>, omitting the version
// level for unversioned sources, and refuses path elements that would
// escape the root.
func (m *Manager) finalPath(key, version, filename string) (string, error) {
	for _, part := range []string{key, version, filename} {
		if strings.Contains(part, "..") || strings.ContainsAny(part, "/\\") {
			return "", fmt.Errorf("unsafe path element %q", part)
		}
	}
	if filename == "" {
		return "", errors.New("filename is required")
	}
	parts := []string{m.cfg.Root, key}
	if version != "" {
		parts = append(parts, version)
	}
	parts = append(parts, filename)
	full := filepath.Join(parts...)

	cleanRoot := filepath.Clean(m.cfg.Root)
	if !strings.HasPrefix(filepath.Clean(full), cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes mirror root: %q", full)
	}
	return full, nil
}

func joinObjectKey(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
