package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures the S3-compatible backend. Each logical bucket maps
// to BucketPrefix + bucket on the server.
type MinIOConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Region       string
	BucketPrefix string
}

// MinIOStore keeps objects in MinIO or any S3-compatible service.
type MinIOStore struct {
	client *minio.Client
	cfg    MinIOConfig
}

func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("storage: minio endpoint is required")
	}
	useSSL := cfg.UseSSL
	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("storage: parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio: %w", err)
	}
	return &MinIOStore{client: client, cfg: cfg}, nil
}

// EnsureBuckets creates any missing server-side bucket.
func (s *MinIOStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{BucketImages, BucketGenerated} {
		name := s.bucketName(bucket)
		exists, err := s.client.BucketExists(ctx, name)
		if err != nil {
			return fmt.Errorf("storage: bucket exists %s: %w", name, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", name, err)
			}
		}
	}
	return nil
}

// Create uploads data unless the key already exists. Names are random
// uuids, so the stat-then-put window is not guarded further.
func (s *MinIOStore) Create(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	if err := checkName(bucket, name); err != nil {
		return err
	}
	server := s.bucketName(bucket)
	_, err := s.client.StatObject(ctx, server, name, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return ErrExists
	case !isNoSuchKey(err):
		return fmt.Errorf("storage: stat object: %w", err)
	}

	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, server, name, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("storage: put object: %w", err)
	}
	return nil
}

func (s *MinIOStore) Open(ctx context.Context, bucket, name string) (*Object, error) {
	if err := checkName(bucket, name); err != nil {
		return nil, err
	}
	server := s.bucketName(bucket)
	info, err := s.client.StatObject(ctx, server, name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("storage: stat object: %w", err)
	}
	obj, err := s.client.GetObject(ctx, server, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: get object: %w", err)
	}
	return &Object{
		Body:        obj,
		Size:        info.Size,
		ContentType: info.ContentType,
		ModTime:     info.LastModified,
	}, nil
}

func (s *MinIOStore) Delete(ctx context.Context, bucket, name string) error {
	if err := checkName(bucket, name); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucketName(bucket), name, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("storage: remove object: %w", err)
	}
	return nil
}

func (s *MinIOStore) bucketName(bucket string) string {
	return s.cfg.BucketPrefix + bucket
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

var _ ObjectStore = (*MinIOStore)(nil)
