package storage

import (
	"context"
	"errors"

	"github.com/minio/minio-go/v7"
)

// ErrNotFound is returned when the source object does not exist in the
// bucket. The pipeline treats it as terminal for the video.
var ErrNotFound = errors.New("object not found")

type ObjectInfo struct {
	Size     int64
	MimeType string
}

// BlobStore is the durable store holding source video bytes.
type BlobStore interface {
	Fetch(ctx context.Context, objectPath, destPath string) error
	Stat(ctx context.Context, objectPath string) (*ObjectInfo, error)
}

type minioStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(client *minio.Client, bucket string) BlobStore {
	return &minioStore{
		client: client,
		bucket: bucket,
	}
}

func (s *minioStore) Fetch(ctx context.Context, objectPath, destPath string) error {
	err := s.client.FGetObject(ctx, s.bucket, objectPath, destPath, minio.GetObjectOptions{})
	if err != nil {
		return mapMinIOError(err)
	}
	return nil
}

func (s *minioStore) Stat(ctx context.Context, objectPath string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, objectPath, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapMinIOError(err)
	}

	return &ObjectInfo{
		Size:     info.Size,
		MimeType: info.ContentType,
	}, nil
}

func mapMinIOError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return errors.Join(ErrNotFound, err)
	}
	return err
}
