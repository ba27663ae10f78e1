package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
)

// handlePattern matches the hex digest handles this store issues.
var handlePattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// LocalDocumentStore keeps documents on the local filesystem, addressed
// by the SHA-256 of their content. Writing the same bytes twice yields
// the same handle, so re-uploads are free and handles are immutable.
type LocalDocumentStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalDocumentStore creates the base directory if needed.
func NewLocalDocumentStore(baseDir string, logger *zap.Logger) (*LocalDocumentStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalDocumentStore{baseDir: baseDir, logger: logger}, nil
}

// Store writes content under its digest and returns the digest as the
// handle. Writes go through a temp file and rename so a crash never
// leaves a truncated document behind a valid handle.
func (s *LocalDocumentStore) Store(ctx context.Context, content []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", fmt.Errorf("refusing to store empty document")
	}

	sum := sha256.Sum256(content)
	handle := hex.EncodeToString(sum[:])
	path := s.path(handle)

	if _, err := os.Stat(path); err == nil {
		return handle, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finalize document: %w", err)
	}

	s.logger.Debug("Document stored",
		zap.String("handle", handle),
		zap.String("content_type", contentType),
		zap.Int("size", len(content)))

	return handle, nil
}

// Fetch returns the bytes behind a handle.
func (s *LocalDocumentStore) Fetch(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !handlePattern.MatchString(handle) {
		return nil, fmt.Errorf("invalid document handle %q", handle)
	}

	content, err := os.ReadFile(s.path(handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document %s not found", handle)
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return content, nil
}

// Exists reports whether a handle resolves to a stored document.
func (s *LocalDocumentStore) Exists(ctx context.Context, handle string) bool {
	if !handlePattern.MatchString(handle) {
		return false
	}
	_, err := os.Stat(s.path(handle))
	return err == nil
}

// path shards by the first two hex characters to keep directory
// listings manageable.
func (s *LocalDocumentStore) path(handle string) string {
	return filepath.Join(s.baseDir, handle[:2], handle)
}

// Verify interface compliance
var _ port.DocumentStore = (*LocalDocumentStore)(nil)
