// Package objectstore caches table data files in an S3 compatible bucket.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Client defines the bucket operations the store needs.
type Client interface {
	HeadObject(ctx context.Context, bucket, key string) (bool, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucket, key string, body io.ReadSeeker) error
	DeleteObject(ctx context.Context, bucket, key, versionID string) error
	ListObjectVersions(ctx context.Context, bucket, prefix string) ([]ObjectVersion, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ObjectVersion is one stored version of a key. Delete markers are listed
// as versions too.
type ObjectVersion struct {
	Key          string
	VersionID    string
	IsLatest     bool
	DeleteMarker bool
	Size         int64
	LastModified time.Time
}
