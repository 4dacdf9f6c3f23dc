// Package local serves buckets from directories below a base path:
// <base>/<bucket>/<key>.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/s1-storage/s1/internal/storage"
)

type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, fmt.Errorf("local storage path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve local storage path: %w", err)
	}
	return &Store{basePath: abs}, nil
}

func (s *Store) BasePath() string {
	return s.basePath
}

func (s *Store) Get(ctx context.Context, bucket, key string) (storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return storage.Object{}, err
	}
	objectPath, normalized, err := s.objectPath(bucket, key)
	if err != nil {
		return storage.Object{}, err
	}
	stat, err := os.Stat(objectPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.Object{}, storage.ErrObjectNotFound
		}
		return storage.Object{}, fmt.Errorf("stat object %q: %w", normalized, err)
	}
	if stat.IsDir() {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	data, err := os.ReadFile(objectPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.Object{}, storage.ErrObjectNotFound
		}
		return storage.Object{}, fmt.Errorf("read object %q: %w", normalized, err)
	}
	return storage.Object{Info: objectInfo(normalized, stat), Data: data}, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return storage.ObjectInfo{}, err
	}
	objectPath, normalized, err := s.objectPath(bucket, key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(objectPath), ".put-*")
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return storage.ObjectInfo{}, fmt.Errorf("write object %q: %w", normalized, err)
	}
	if err := tmp.Close(); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("close object %q: %w", normalized, err)
	}
	if err := os.Rename(tmpName, objectPath); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("commit object %q: %w", normalized, err)
	}

	stat, err := os.Stat(objectPath)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", normalized, err)
	}
	info := objectInfo(normalized, stat)
	if opts.ContentType != "" {
		info.ContentType = opts.ContentType
	}
	return info, nil
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	if err := storage.ValidateBucket(bucket); err != nil {
		return nil, err
	}
	bucketPath := filepath.Join(s.basePath, bucket)
	stat, err := os.Stat(bucketPath)
	if err != nil || !stat.IsDir() {
		return nil, storage.ErrBucketNotFound
	}

	var objects []storage.ObjectInfo
	err = filepath.WalkDir(bucketPath, func(current string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(bucketPath, current)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		objects = append(objects, objectInfo(key, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list bucket %q: %w", bucket, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	stat, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("local storage path: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("local storage path %q is not a directory", s.basePath)
	}
	return nil
}

func (s *Store) objectPath(bucket, key string) (string, string, error) {
	if err := storage.ValidateBucket(bucket); err != nil {
		return "", "", err
	}
	normalized, err := storage.NormalizeKey(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.basePath, bucket, filepath.FromSlash(normalized)), normalized, nil
}

func objectInfo(key string, stat fs.FileInfo) storage.ObjectInfo {
	modTime := stat.ModTime().UTC()
	return storage.ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		ETag:         fmt.Sprintf(`"%x-%x"`, modTime.UnixNano(), stat.Size()),
		LastModified: modTime,
		ContentType:  "application/octet-stream",
	}
}
