package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage provides an S3-compatible variant store using MinIO.
// Directories map to key prefixes inside a single bucket.
type Storage struct {
	client     *minio.Client
	bucketName string
}

// NewStorage creates a new Storage instance connected to the specified MinIO server.
// If the bucket does not exist, it will be created automatically.
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Save uploads data as dir/name and returns the object key.
// Prefixes need no creation step in S3.
func (s *Storage) Save(ctx context.Context, dir, name string, data []byte) (string, error) {
	objectName := ObjectName(dir, name)

	_, err := s.client.PutObject(ctx, s.bucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimetype.Detect(data).String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return objectName, nil
}

// List returns the names of the objects directly under dir. Keys nested
// deeper (thumbnail subdirectories) are skipped.
func (s *Storage) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dirPrefix(dir)

	// Cancelling stops the listing goroutine if we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}

		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}

	return names, nil
}

// Delete removes dir/name from the bucket. Removing a missing key succeeds.
func (s *Storage) Delete(ctx context.Context, dir, name string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, ObjectName(dir, name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// ObjectName maps a relative directory and file name to an object key.
func ObjectName(dir, name string) string {
	return dirPrefix(dir) + path.Base("/"+name)
}

func dirPrefix(dir string) string {
	p := strings.Trim(path.Clean("/"+dir), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
