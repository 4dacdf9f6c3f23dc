// Package storage defines the bucket/key object store contract shared by the
// filesystem and S3-compatible backends and by the read-through cache.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrBucketNotFound = errors.New("bucket not found")
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// Object is a fully read object. Data must be treated as immutable once
// returned since the cache hands the same slice to every caller.
type Object struct {
	Info ObjectInfo
	Data []byte
}

type PutOptions struct {
	ContentType string
}

// Getter is the read path consumed by query evaluation and GetObject.
type Getter interface {
	Get(ctx context.Context, bucket, key string) (Object, error)
}

type ObjectStore interface {
	Getter
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	// List returns every object of the bucket whose key starts with prefix,
	// sorted by key.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	HealthCheck(ctx context.Context) error
}
