// Package docstore stores generated agreements. Keys are slash-separated
// paths such as "ndas/<id>/agreement.txt".
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("docstore: document not found")

// Ref identifies a stored document.
type Ref struct {
	Key      string `json:"key"`
	Size     int    `json:"size"`
	Checksum string `json:"checksum"`
}

// Store is the document store contract. Put overwrites existing content.
type Store interface {
	Put(ctx context.Context, key string, content []byte) (Ref, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

func refFor(key string, content []byte) Ref {
	sum := sha256.Sum256(content)
	return Ref{Key: key, Size: len(content), Checksum: hex.EncodeToString(sum[:])}
}

// ──────────────────────────────────────────────────
// Memory
// ──────────────────────────────────────────────────

var _ Store = (*Memory)(nil)

// Memory keeps documents in a map.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

// Put stores a copy of content under key.
func (m *Memory) Put(_ context.Context, key string, content []byte) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), content...)
	return refFor(key, content), nil
}

// Get returns the content stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return append([]byte(nil), doc...), nil
}

// ──────────────────────────────────────────────────
// File system
// ──────────────────────────────────────────────────

var _ Store = (*FileSystem)(nil)

// FileSystem stores documents as files below a root directory.
type FileSystem struct {
	rootDir string
}

// NewFileSystem creates a file system store rooted at rootDir, creating
// the directory if needed.
func NewFileSystem(rootDir string) (*FileSystem, error) {
	if rootDir == "" {
		rootDir = "."
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("docstore: resolve root %q: %w", rootDir, err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create root %q: %w", absRoot, err)
	}
	return &FileSystem{rootDir: absRoot}, nil
}

// sanitizePath maps key below the root and rejects keys that escape it.
func (s *FileSystem) sanitizePath(key string) (string, error) {
	clean := strings.TrimPrefix(filepath.Clean(filepath.FromSlash(key)), string(filepath.Separator))
	full := filepath.Join(s.rootDir, clean)
	if full != s.rootDir && !strings.HasPrefix(full, s.rootDir+string(filepath.Separator)) {
		return "", fmt.Errorf("docstore: key %q escapes root directory", key)
	}
	if full == s.rootDir {
		return "", fmt.Errorf("docstore: empty key")
	}
	return full, nil
}

// Put writes content to the file for key. The write goes to a temporary
// file first and is renamed into place.
func (s *FileSystem) Put(_ context.Context, key string, content []byte) (Ref, error) {
	full, err := s.sanitizePath(key)
	if err != nil {
		return Ref{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Ref{}, fmt.Errorf("docstore: put %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return Ref{}, fmt.Errorf("docstore: put %q: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return Ref{}, fmt.Errorf("docstore: put %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Ref{}, fmt.Errorf("docstore: put %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return Ref{}, fmt.Errorf("docstore: put %q: %w", key, err)
	}
	return refFor(key, content), nil
}

// Get reads the file for key.
func (s *FileSystem) Get(_ context.Context, key string) ([]byte, error) {
	full, err := s.sanitizePath(key)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %q: %w", key, err)
	}
	return content, nil
}
