package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dverasc/datalens-backend/internal/logger"
)

// ErrNotFound is returned by Read when the referenced file does not exist.
var ErrNotFound = errors.New("blob not found")

// Store persists uploaded payloads on the local filesystem. Files are written
// once and never mutated in place, so readers need no locking.
type Store interface {
	Save(content []byte, suggestedName string) (string, error)
	Read(ref string) ([]byte, error)
	Delete(ref string) error
}

type diskStore struct {
	root string
	log  *logger.Logger
}

func NewDiskStore(root string, baseLog *logger.Logger) (Store, error) {
	storeLog := baseLog.With("service", "BlobStore")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	storeLog.Info("Blob store ready", "root", root)
	return &diskStore{root: root, log: storeLog}, nil
}

// Save writes content under a path derived from suggestedName. A short uuid
// suffix keeps repeated uploads of the same file name from colliding.
func (s *diskStore) Save(content []byte, suggestedName string) (string, error) {
	name := sanitizeName(suggestedName)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base = "upload"
	}
	suffix := uuid.NewString()[:8]
	ref := filepath.Join(s.root, fmt.Sprintf("%s_%s%s", base, suffix, ext))

	f, err := os.OpenFile(ref, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create blob file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		_ = os.Remove(ref)
		return "", fmt.Errorf("write blob file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(ref)
		return "", fmt.Errorf("close blob file: %w", err)
	}
	return ref, nil
}

func (s *diskStore) Read(ref string) ([]byte, error) {
	content, err := os.ReadFile(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob file: %w", err)
	}
	return content, nil
}

// Delete is idempotent: a missing file only logs a diagnostic, since the
// registry row is the source of truth for existence.
func (s *diskStore) Delete(ref string) error {
	if err := os.Remove(ref); err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("Blob already absent on delete", "ref", ref)
			return nil
		}
		return fmt.Errorf("delete blob file: %w", err)
	}
	return nil
}

// sanitizeName strips any path components from a client-supplied file name.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "upload"
	}
	return name
}
