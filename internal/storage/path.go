package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var bucketNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{1,62}$`)

// ValidateBucket accepts S3-style bucket names. Mixed case is tolerated for
// local directories.
func ValidateBucket(bucket string) error {
	if !bucketNamePattern.MatchString(bucket) || strings.Contains(bucket, "..") {
		return fmt.Errorf("invalid bucket name: %q", bucket)
	}
	return nil
}

// NormalizeKey cleans an object key and rejects keys escaping the bucket.
func NormalizeKey(key string) (string, error) {
	trimmed := strings.TrimPrefix(key, "/")
	if strings.TrimSpace(trimmed) == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, nil
}

// JoinPrefix places a normalized key below an optional backend-wide prefix.
func JoinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// CleanPrefix normalizes a backend-wide key prefix; "" means none.
func CleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}
