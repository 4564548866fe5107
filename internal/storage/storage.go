package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrBlobNotFound is returned when a locator does not resolve to stored
	// bytes. The pipeline maps this to "no content", not to a failure.
	ErrBlobNotFound = errors.New("blob not found")
)

// Store persists uploaded artifact bytes and hands back a stable locator.
// Entries are write-once; nothing in this core mutates or deletes them.
type Store interface {
	Write(ctx context.Context, filename string, content []byte) (string, error)
	Read(ctx context.Context, locator string) ([]byte, error)
}

// FilesystemStore keeps blobs under a base directory, one file per upload,
// keyed by a fresh id so concurrent uploads of the same filename never
// collide.
type FilesystemStore struct {
	baseDir string
}

func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	if baseDir == "" {
		return nil, errors.New("storage base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir}, nil
}

func (s *FilesystemStore) Write(ctx context.Context, filename string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := uuid.NewString() + "_" + sanitizeFilename(filename)
	path := filepath.Join(s.baseDir, key)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return key, nil
}

func (s *FilesystemStore) Read(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if locator == "" {
		return nil, ErrBlobNotFound
	}

	// Locators are opaque keys, never paths; refuse anything that would
	// escape the base directory.
	if strings.Contains(locator, "/") || strings.Contains(locator, "..") {
		return nil, ErrBlobNotFound
	}

	content, err := os.ReadFile(filepath.Join(s.baseDir, locator))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	return content, nil
}

func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}
