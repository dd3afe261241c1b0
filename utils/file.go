package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EnsureUploadDir creates the uploads directory if it doesn't exist
func EnsureUploadDir(dir string) error {
	return os.MkdirAll(dir, os.ModePerm)
}

// LocalStore keeps blobs on disk under Dir. Used in development and tests.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := EnsureUploadDir(dir); err != nil {
		return nil, err
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStore) path(hash string) (string, error) {
	clean := filepath.Clean(hash)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("illegal blob key: %s", hash)
	}
	return filepath.Join(s.Dir, clean), nil
}

func (s *LocalStore) Put(_ context.Context, name string, data []byte) (Blob, error) {
	key := ObjectKey("", name)
	dest, err := s.path(key)
	if err != nil {
		return Blob{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return Blob{}, err
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return Blob{}, fmt.Errorf("failed to save file: %w", err)
	}
	return Blob{Hash: key, URL: s.BaseURL + "/" + key}, nil
}

func (s *LocalStore) Get(_ context.Context, hash string) ([]byte, error) {
	src, err := s.path(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

// MemoryStore is an in-process BlobStore.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, name string, data []byte) (Blob, error) {
	key := ObjectKey("", name)
	cp := append([]byte(nil), data...)
	s.mu.Lock()
	s.blobs[key] = cp
	s.mu.Unlock()
	return Blob{Hash: key, URL: "memory://" + key}, nil
}

func (s *MemoryStore) Get(_ context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[hash]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}
