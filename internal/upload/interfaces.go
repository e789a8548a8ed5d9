package upload

import (
	"context"
	"io"
)

// ObjectStore is the storage surface the direct uploader needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error
	HeadBucket(ctx context.Context) error
	ObjectURL(key string) string
}
