package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bdougie/relife/internal/apperrors"
)

// DefaultBucket holds frames when the MinIO backend is selected.
const DefaultBucket = "relife-frames"

// MinioConfig holds MinIO connection settings
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// MinioFrameStore keeps frame images in an S3-compatible bucket.
type MinioFrameStore struct {
	mc     *minio.Client
	bucket string
}

func NewMinioFrameStore(cfg MinioConfig) (*MinioFrameStore, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &MinioFrameStore{mc: mc, bucket: bucket}, nil
}

// Init creates the bucket if it doesn't exist.
func (s *MinioFrameStore) Init(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
		slog.Info("bucket created", "bucket", s.bucket)
	}
	return nil
}

func (s *MinioFrameStore) Save(ctx context.Context, ts int64, data []byte) error {
	name := FrameName(ts)
	_, err := s.mc.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.bucket, name, err)
	}
	return nil
}

func (s *MinioFrameStore) Load(ctx context.Context, ts int64) ([]byte, error) {
	name := FrameName(ts)
	obj, err := s.mc.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperrors.NewNotFoundError("image", "Image file not found")
		}
		return nil, fmt.Errorf("read %s/%s: %w", s.bucket, name, err)
	}
	return data, nil
}

// Delete succeeds for objects that are already gone; S3 removal is idempotent.
func (s *MinioFrameStore) Delete(ctx context.Context, ts int64) error {
	name := FrameName(ts)
	if err := s.mc.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("delete %s/%s: %w", s.bucket, name, err)
	}
	return nil
}

// Healthy checks if MinIO is reachable.
func (s *MinioFrameStore) Healthy(ctx context.Context) bool {
	_, err := s.mc.BucketExists(ctx, s.bucket)
	return err == nil
}
