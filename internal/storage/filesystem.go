package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps buckets as directories under a base path.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath and creates both
// bucket directories.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	for _, bucket := range []string{BucketImages, BucketGenerated} {
		if err := os.MkdirAll(filepath.Join(basePath, bucket), 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure bucket %s: %w", bucket, err)
		}
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Create writes data to bucket/name with O_EXCL. A partial file left by a
// failed write is removed.
func (s *FileStore) Create(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(bucket, name); err != nil {
		return err
	}
	fullPath := s.path(bucket, name)
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("storage: create file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(fullPath)
		return fmt.Errorf("storage: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("storage: close file: %w", err)
	}
	return nil
}

// Open returns the stored object. The content type is derived from the name.
func (s *FileStore) Open(ctx context.Context, bucket, name string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(bucket, name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(bucket, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat file: %w", err)
	}
	return &Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		ModTime:     info.ModTime(),
	}, nil
}

// Delete removes bucket/name. A missing object is not an error.
func (s *FileStore) Delete(ctx context.Context, bucket, name string) error {
	if err := checkName(bucket, name); err != nil {
		return err
	}
	if err := os.Remove(s.path(bucket, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

func (s *FileStore) path(bucket, name string) string {
	return filepath.Join(s.basePath, bucket, name)
}

var _ ObjectStore = (*FileStore)(nil)
