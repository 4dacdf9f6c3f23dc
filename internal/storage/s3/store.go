// Package s3 serves buckets from an S3-compatible object store through
// minio-go. Google Cloud Storage is reached through its S3 interoperability
// endpoint with HMAC keys.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/s1-storage/s1/internal/storage"
)

const GCSEndpoint = "https://storage.googleapis.com"

type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	// Prefix is prepended to every key; listed keys are reported without it.
	Prefix string
}

type client interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (storage.Object, error)
	List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error)
	ListBuckets(ctx context.Context) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, region string) error
}

type Store struct {
	client client
	prefix string
	region string
}

func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{client: mc, prefix: storage.CleanPrefix(cfg.Prefix), region: strings.TrimSpace(cfg.Region)}, nil
}

func NewWithClient(prefix string, c client) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	return &Store{client: c, prefix: storage.CleanPrefix(prefix)}, nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) (storage.Object, error) {
	objectKey, normalized, err := s.objectKey(bucket, key)
	if err != nil {
		return storage.Object{}, err
	}
	object, err := s.client.Get(ctx, bucket, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.Object{}, storage.ErrObjectNotFound
		}
		if errors.Is(err, storage.ErrBucketNotFound) {
			return storage.Object{}, storage.ErrBucketNotFound
		}
		return storage.Object{}, fmt.Errorf("get object %q: %w", normalized, err)
	}
	object.Info.Key = normalized
	return object, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	objectKey, normalized, err := s.objectKey(bucket, key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.client.Put(ctx, bucket, objectKey, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put object %q: %w", normalized, err)
	}
	info.Key = normalized
	return info, nil
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	if err := storage.ValidateBucket(bucket); err != nil {
		return nil, err
	}
	listPrefix := prefix
	if s.prefix != "" {
		listPrefix = s.prefix + "/" + prefix
	}
	objects, err := s.client.List(ctx, bucket, listPrefix)
	if err != nil {
		if errors.Is(err, storage.ErrBucketNotFound) {
			return nil, storage.ErrBucketNotFound
		}
		return nil, fmt.Errorf("list bucket %q: %w", bucket, err)
	}
	if s.prefix != "" {
		for i := range objects {
			objects[i].Key = strings.TrimPrefix(objects[i].Key, s.prefix+"/")
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("s3 health check: %w", err)
	}
	return nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	if err := storage.ValidateBucket(bucket); err != nil {
		return err
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.CreateBucket(ctx, bucket, s.region); err != nil {
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	return nil
}

func (s *Store) objectKey(bucket, key string) (string, string, error) {
	if err := storage.ValidateBucket(bucket); err != nil {
		return "", "", err
	}
	normalized, err := storage.NormalizeKey(key)
	if err != nil {
		return "", "", err
	}
	return storage.JoinPrefix(s.prefix, normalized), normalized, nil
}

func newMinioClient(cfg Config) (*minioClient, error) {
	endpoint, secure, err := ParseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

// ParseEndpoint splits an endpoint given either as host[:port] or as a URL
// into the host and whether TLS is used.
func ParseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}
		if parsed.Scheme == "https" {
			return parsed.Host, true, nil
		}
		return parsed.Host, useSSL, nil
	}
	return raw, useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	uploadInfo, err := m.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, mapMinioErr(err)
	}
	return storage.ObjectInfo{Key: uploadInfo.Key, Size: uploadInfo.Size, ETag: quoteETag(uploadInfo.ETag), LastModified: uploadInfo.LastModified, ContentType: contentType}, nil
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) (storage.Object, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return storage.Object{}, mapMinioErr(err)
	}
	defer func() { _ = obj.Close() }()

	stat, err := obj.Stat()
	if err != nil {
		return storage.Object{}, mapMinioErr(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return storage.Object{}, mapMinioErr(err)
	}
	return storage.Object{Info: objectInfo(stat), Data: data}, nil
}

func (m *minioClient) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, mapMinioErr(obj.Err)
		}
		objects = append(objects, objectInfo(obj))
	}
	return objects, nil
}

func (m *minioClient) ListBuckets(ctx context.Context) error {
	if _, err := m.client.ListBuckets(ctx); err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func (m *minioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, mapMinioErr(err)
	}
	return exists, nil
}

func (m *minioClient) CreateBucket(ctx context.Context, bucket, region string) error {
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func objectInfo(obj minio.ObjectInfo) storage.ObjectInfo {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return storage.ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ETag:         quoteETag(obj.ETag),
		LastModified: obj.LastModified.UTC(),
		ContentType:  contentType,
	}
}

func quoteETag(etag string) string {
	if etag == "" || strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NotFound":
			return storage.ErrObjectNotFound
		case "NoSuchBucket":
			return storage.ErrBucketNotFound
		}
	}
	return err
}
