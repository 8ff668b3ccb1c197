package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskStorage keeps objects as files below a root directory. The bucket is a
// subdirectory of root.
type DiskStorage struct {
	root   string
	bucket string
}

func NewDiskStorage(root, bucket string) (*DiskStorage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("disk storage root is required")
	}
	if bucket == "" {
		bucket = "audio"
	}
	return &DiskStorage{root: root, bucket: bucket}, nil
}

func (d *DiskStorage) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(filepath.Join(d.root, d.bucket), 0o750)
}

func (d *DiskStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".obj-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (d *DiskStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return f, err
}

func (d *DiskStorage) Delete(ctx context.Context, key string) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *DiskStorage) Bucket() string {
	return d.bucket
}

// path maps key into the bucket directory, rejecting keys that escape it.
func (d *DiskStorage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.root, d.bucket, clean), nil
}
