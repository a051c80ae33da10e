// Package media stores uploaded post attachments and podcast audio in
// an S3-compatible object store.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"reflecto/api/internal/util"
)

type Store struct {
	client *minio.Client
	bucket string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewStore(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{client: client, bucket: opts.Bucket}, nil
}

// Upload writes the object and returns the relative URL clients use to
// fetch it back through the API.
func (s *Store) Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error) {
	object := objectName(filename)
	_, err := s.client.PutObject(ctx, s.bucket, object, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return "/media/" + object, nil
}

// Fetch streams an object previously stored by Upload. Callers must
// close the returned reader.
func (s *Store) Fetch(ctx context.Context, object string) (io.ReadCloser, error) {
	reader, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject is lazy, the first read surfaces missing objects.
	if _, err := reader.Stat(); err != nil {
		reader.Close()
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return reader, nil
}

func (s *Store) Remove(ctx context.Context, object string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func objectName(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	stamp := time.Now().UTC().Format("20060102")
	return stamp + "/" + util.NewID("obj") + ext
}
