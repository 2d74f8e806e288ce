// Package localfs provides a remote.Store backed by a local directory, for
// offline development and tests.
package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/remote"
	"github.com/rs/zerolog"
)

var _ remote.Store = (*Store)(nil)

// Store maps document paths to files under a base directory.
// Path format: "/2026-fall/cs101-a.json" -> "{basePath}/2026-fall/cs101-a.json"
// The access token is ignored.
type Store struct {
	basePath string
	logger   zerolog.Logger
}

// New creates a directory-backed store, creating basePath if needed.
func New(basePath string, logger zerolog.Logger) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local store base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", basePath, err)
	}

	logger.Debug().Str("path", basePath).Msg("Local store initialized")
	return &Store{basePath: basePath, logger: logger}, nil
}

// sanitizePath keeps every document inside the base directory.
func (s *Store) sanitizePath(path string) string {
	clean := filepath.Clean("/" + path)
	clean = strings.TrimPrefix(clean, "/")
	return strings.ReplaceAll(clean, "..", "__")
}

func (s *Store) filePath(path string) string {
	return filepath.Join(s.basePath, s.sanitizePath(path))
}

func (s *Store) Download(ctx context.Context, _ string, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrRemoteTransient, "%v", err)
	}
	data, err := os.ReadFile(s.filePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrRemoteNotFound, "%s", path)
		}
		return nil, errors.Wrapf(errors.ErrRemoteTransient, "failed to read %s: %v", path, err)
	}
	return data, nil
}

// Upload writes atomically using temp file + rename.
func (s *Store) Upload(ctx context.Context, _ string, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(errors.ErrRemoteTransient, "%v", err)
	}
	target := s.filePath(path)
	dir := filepath.Dir(target)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(errors.ErrRemoteTransient, "failed to create directory %s: %v", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(errors.ErrRemoteTransient, "failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(errors.ErrRemoteTransient, "failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(errors.ErrRemoteTransient, "failed to close temp file: %v", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(errors.ErrRemoteTransient, "failed to rename temp file: %v", err)
	}

	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("Saved locally")
	return nil
}
