package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DE-IBH/b3lb/internal/logging"
)

// LocalStorage keeps recording blobs under a root directory. Keys map
// to relative paths; delivery streams through the balancer process.
type LocalStorage struct {
	root   string
	logger logging.Logger
}

func NewLocalStorage(root string, logger logging.Logger) (*LocalStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	logger.WithField("root", root).Info("Local recording storage initialized")
	return &LocalStorage{root: root, logger: logger}, nil
}

// path resolves a key inside the root, rejecting traversal attempts.
func (l *LocalStorage) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	full := filepath.Join(l.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(l.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return full, nil
}

func (l *LocalStorage) Save(ctx context.Context, key string, r io.Reader) error {
	full, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(full), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", key, err)
	}
	return nil
}

func (l *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

func (l *LocalStorage) Size(ctx context.Context, key string) (int64, error) {
	full, err := l.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return info.Size(), nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	full, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (l *LocalStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	full, err := l.path(prefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	err = filepath.Walk(full, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			deleted++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", prefix, err)
	}

	if err := os.RemoveAll(full); err != nil {
		return 0, fmt.Errorf("failed to delete under %s: %w", prefix, err)
	}

	l.logger.WithFields(logging.Fields{
		"prefix":  prefix,
		"deleted": deleted,
	}).Info("Deleted recording files")

	return deleted, nil
}

func (l *LocalStorage) PresignGet(ctx context.Context, key, filename string, expiry time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}
