package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Folder    string
	// PublicURL overrides the scheme://endpoint prefix used for object URLs.
	PublicURL string
}

// MinIOStorage stores uploads as objects in a single bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	folder string
	base   string
}

func NewMinIOStorage(ctx context.Context, cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}

	ms := &MinIOStorage{client: client, bucket: cfg.Bucket, folder: cfg.Folder, base: base}
	if err := ms.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return ms, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (ms *MinIOStorage) EnsureBucket(ctx context.Context) error {
	exists, err := ms.client.BucketExists(ctx, ms.bucket)
	if err != nil {
		return &StorageError{Backend: "minio", Op: "bucket check", Err: err}
	}
	if exists {
		return nil
	}
	if err := ms.client.MakeBucket(ctx, ms.bucket, minio.MakeBucketOptions{}); err != nil {
		return &StorageError{Backend: "minio", Op: "make bucket", Err: err}
	}
	return nil
}

func (ms *MinIOStorage) Store(ctx context.Context, data []byte, info FileInfo) (*StoredObject, error) {
	name, err := UniqueName(info)
	if err != nil {
		return nil, &StorageError{Backend: "minio", Op: "store", Err: err}
	}
	objectPath := path.Join(ms.folder, name)

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = ms.client.PutObject(ctx, ms.bucket, objectPath, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, &StorageError{Backend: "minio", Op: "store", Err: err}
	}

	return &StoredObject{
		URL:  fmt.Sprintf("%s/%s/%s", ms.base, ms.bucket, objectPath),
		Path: objectPath,
	}, nil
}

func (ms *MinIOStorage) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	cleanPath, err := cleanObjectPath(p)
	if err != nil {
		return nil, &StorageError{Backend: "minio", Op: "open", Err: err}
	}

	obj, err := ms.client.GetObject(ctx, ms.bucket, cleanPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, &StorageError{Backend: "minio", Op: "open", Err: err}
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, &StorageError{Backend: "minio", Op: "open", Err: err}
	}
	return obj, nil
}
