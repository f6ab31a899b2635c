package lessons

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// catalogs
	_ "gocloud.dev/blob/memblob"  // mem:// catalogs, mostly for tests
)

// DefaultCatalogKey is the object key read when none is configured.
const DefaultCatalogKey = "lessons.yaml"

// LoadFromBucket reads and parses the catalog document stored under key.
func LoadFromBucket(ctx context.Context, bucket *blob.Bucket, key string) (*Catalog, error) {
	if key == "" {
		key = DefaultCatalogKey
	}

	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %q: %w", key, err)
	}

	lessons, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return NewCatalog(lessons...), nil
}

// OpenCatalog opens the bucket at bucketURL (e.g. "file:///etc/learner",
// "mem://", "s3://bucket" when the driver is linked) and loads the catalog from key.
func OpenCatalog(ctx context.Context, bucketURL, key string) (*Catalog, error) {
	if bucketURL == "" {
		return nil, fmt.Errorf("catalog bucket URL is required")
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog bucket: %w", err)
	}
	defer bucket.Close()

	return LoadFromBucket(ctx, bucket, key)
}
