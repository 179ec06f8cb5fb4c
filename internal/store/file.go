package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/imamik/hubspoke/internal/spoke"
)

// FileStore keeps every record in a single JSON document, rewritten
// atomically on each change.
type FileStore struct {
	mu    sync.Mutex
	path  string
	cache *MemoryStore
}

var _ Store = (*FileStore)(nil)

// fileDocument is the on-disk layout: records keyed by spoke id.
type fileDocument struct {
	Deployments map[string]*spoke.Deployment `json:"deployments"`
}

// NewFileStore opens or creates the document at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, cache: NewMemoryStore()}

	// #nosec G304
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode store file %s: %w", path, err)
	}
	for key, d := range doc.Deployments {
		if d == nil {
			continue
		}
		if id, err := strconv.Atoi(key); err != nil || id != d.SpokeID {
			return nil, fmt.Errorf("store file %s: key %q does not match spoke id %d", path, key, d.SpokeID)
		}
		s.cache.records[d.SpokeID] = d
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, spokeID int) (*spoke.Deployment, error) {
	return s.cache.Get(ctx, spokeID)
}

func (s *FileStore) List(ctx context.Context) ([]*spoke.Deployment, error) {
	return s.cache.List(ctx)
}

func (s *FileStore) Put(ctx context.Context, d *spoke.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.cache.Get(ctx, d.SpokeID)
	if err != nil && !errors.Is(err, spoke.ErrNotFound) {
		return err
	}
	_ = s.cache.Put(ctx, d)
	if err := s.flush(ctx); err != nil {
		// Keep memory consistent with disk.
		if prev != nil {
			_ = s.cache.Put(ctx, prev)
		} else {
			_ = s.cache.Delete(ctx, d.SpokeID)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, spokeID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.cache.Get(ctx, spokeID)
	if err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, spokeID)
	if err := s.flush(ctx); err != nil {
		_ = s.cache.Put(ctx, prev)
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// flush writes the cache to a temp file and renames it over the document.
// Caller holds s.mu.
func (s *FileStore) flush(ctx context.Context) error {
	all, err := s.cache.List(ctx)
	if err != nil {
		return err
	}
	doc := fileDocument{Deployments: make(map[string]*spoke.Deployment, len(all))}
	for _, d := range all {
		doc.Deployments[strconv.Itoa(d.SpokeID)] = d
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".deployments-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
