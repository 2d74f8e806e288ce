package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var _ Store = (*FileStore)(nil)

// FileStore persists credentials as a JSON object in a single file so they
// survive process restarts. Every write replaces the file atomically.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	values map[Key]string
}

// OpenFileStore loads the store at path, creating its directory if needed.
// A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fs := &FileStore{
		path:   path,
		values: make(map[Key]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return fs, nil
}

func (fs *FileStore) Get(key Key) (string, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	v, ok := fs.values[key]
	return v, ok
}

func (fs *FileStore) Set(key Key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prev, existed := fs.values[key]
	fs.values[key] = value
	if err := fs.flush(); err != nil {
		if existed {
			fs.values[key] = prev
		} else {
			delete(fs.values, key)
		}
		return err
	}
	return nil
}

func (fs *FileStore) Remove(key Key) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prev, existed := fs.values[key]
	if !existed {
		return nil
	}
	delete(fs.values, key)
	if err := fs.flush(); err != nil {
		fs.values[key] = prev
		return err
	}
	return nil
}

// flush writes the current values with temp file + rename. Caller holds mu.
func (fs *FileStore) flush() error {
	data, err := json.MarshalIndent(fs.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", fs.path, err)
	}
	return nil
}
