package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// AllBuckets grants an access key every bucket.
const AllBuckets = "*"

type Identity struct {
	AccessKey string
	Owner     string
	Buckets   []string
}

func (i Identity) CanAccess(bucket string) bool {
	for _, candidate := range i.Buckets {
		if candidate == AllBuckets || candidate == bucket {
			return true
		}
	}
	return false
}

type AccessKeyValidator interface {
	Validate(ctx context.Context, accessKey string) (Identity, bool)
}

type StaticAccessKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAccessKeyValidator parses "key:owner:bucket|bucket,..." entries.
func NewStaticAccessKeyValidator(spec string) (*StaticAccessKeyValidator, error) {
	validator := &StaticAccessKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid access key entry %q: expected key:owner:bucket|bucket", entry)
		}
		key := strings.TrimSpace(parts[0])
		owner := strings.TrimSpace(parts[1])
		if key == "" || owner == "" {
			return nil, fmt.Errorf("invalid access key entry %q: empty key/owner", entry)
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("invalid access key entry %q: duplicate key", entry)
		}
		bucketParts := strings.Split(strings.TrimSpace(parts[2]), "|")
		buckets := make([]string, 0, len(bucketParts))
		for _, bucket := range bucketParts {
			bucket = strings.TrimSpace(bucket)
			if bucket == "" {
				continue
			}
			buckets = append(buckets, bucket)
		}
		if len(buckets) == 0 {
			return nil, fmt.Errorf("invalid access key entry %q: at least one bucket is required", entry)
		}
		sort.Strings(buckets)
		validator.keys[key] = Identity{AccessKey: key, Owner: owner, Buckets: buckets}
	}

	return validator, nil
}

func (v *StaticAccessKeyValidator) Validate(_ context.Context, accessKey string) (Identity, bool) {
	identity, ok := v.keys[accessKey]
	return identity, ok
}

func (v *StaticAccessKeyValidator) Len() int {
	return len(v.keys)
}
