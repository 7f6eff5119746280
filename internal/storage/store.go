package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// Buckets hold the two kinds of stored objects.
const (
	BucketImages    = "images"
	BucketGenerated = "generated"
)

var (
	ErrExists         = errors.New("storage: object already exists")
	ErrObjectNotFound = errors.New("storage: object not found")
	ErrUnknownBucket  = errors.New("storage: unknown bucket")
	ErrInvalidName    = errors.New("storage: invalid object name")
)

// Object is an opened stored object. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ObjectStore keeps named objects in buckets. Create never overwrites: an
// existing name yields ErrExists.
type ObjectStore interface {
	Create(ctx context.Context, bucket, name string, data []byte, contentType string) error
	Open(ctx context.Context, bucket, name string) (*Object, error)
	Delete(ctx context.Context, bucket, name string) error
}

// ValidBucket reports whether bucket is one of the known buckets.
func ValidBucket(bucket string) bool {
	return bucket == BucketImages || bucket == BucketGenerated
}

// PublicPath joins the public upload prefix with bucket and name, e.g.
// /uploads/generated/result_x.png.
func PublicPath(prefix, bucket, name string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	return path.Join(prefix, bucket, name)
}

// SplitPublicPath is the inverse of PublicPath.
func SplitPublicPath(prefix, ref string) (bucket, name string, ok bool) {
	prefix = "/" + strings.Trim(prefix, "/") + "/"
	rest, found := strings.CutPrefix(ref, prefix)
	if !found {
		return "", "", false
	}
	bucket, name, found = strings.Cut(rest, "/")
	if !found || !ValidBucket(bucket) || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return bucket, name, true
}

func checkName(bucket, name string) error {
	if !ValidBucket(bucket) {
		return ErrUnknownBucket
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}
