package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"pricewatch/internal/item"
)

// FilePersister stores the snapshot as one JSON document on disk. Writes go
// through a temp file and rename, so the old snapshot is never partially
// overwritten.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister writing to path. Parent directories
// are created on first save.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the snapshot. A missing file is an empty cache, not an error.
func (p *FilePersister) Load(_ context.Context) (map[string]item.Entry, error) {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]item.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}

	var entries map[string]item.Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}
	if entries == nil {
		entries = map[string]item.Entry{}
	}
	return entries, nil
}

// Save writes the whole snapshot atomically.
func (p *FilePersister) Save(_ context.Context, entries map[string]item.Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".pricewatch-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", p.path, err)
	}
	return nil
}
