package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/siilo/siilo/interfaces"
)

// MinioBackend implements a storage backend on MinIO or any S3-compatible
// endpoint via the MinIO SDK.
//
// Bucket resolution follows the same rule as S3Backend: bound bucket or
// first path segment. Put is atomic (single PutObject). Delete stats the
// object first because RemoveObject succeeds for absent keys; the check is
// not atomic with the removal. Listing streams the SDK's object channel and
// cancels it when the iterator is closed, so abandoned listings do not leak
// the underlying connection.
type MinioBackend struct {
	client      *minio.Client
	bucket      string
	log         *slog.Logger
	locationURI string
}

// NewMinioBackend creates a MinIO storage backend for the given endpoint.
func NewMinioBackend(endpoint, bucket, accessKey, secretKey string, useTLS bool, log *slog.Logger) (*MinioBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioBackend{
		client:      client,
		bucket:      bucket,
		log:         log,
		locationURI: fmt.Sprintf("minio://%s/%s", endpoint, bucket),
	}, nil
}

// Put uploads data to the object addressed by path.
func (b *MinioBackend) Put(ctx context.Context, blobPath string, data []byte, contentType string) error {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return err
	}

	_, err = b.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return b.mapError(err)
	}

	b.log.Debug("Stored blob in MinIO",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("size", len(data)))

	return nil
}

// Get downloads the object addressed by path.
func (b *MinioBackend) Get(ctx context.Context, blobPath string) ([]byte, error) {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return nil, err
	}

	obj, err := b.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.mapError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		// GetObject defers the request; absence surfaces on first read.
		return nil, b.mapError(err)
	}
	return data, nil
}

// Exists stats the object addressed by path.
func (b *MinioBackend) Exists(ctx context.Context, blobPath string) (bool, error) {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return false, err
	}

	_, err = b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		mapped := b.mapError(err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// Delete removes the object addressed by path, stat'ing it first; see the
// type comment for the atomicity caveat.
func (b *MinioBackend) Delete(ctx context.Context, blobPath string) error {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return err
	}

	if _, err := b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return b.mapError(err)
	}
	if err := b.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return b.mapError(err)
	}
	return nil
}

// List streams object keys under the given prefix. The iterator owns the
// listing goroutine; Close cancels it.
func (b *MinioBackend) List(ctx context.Context, prefix string) (interfaces.ObjectIterator, error) {
	bucket, keyPrefix, err := b.resolve(prefix, false)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}

	listCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	objects := b.client.ListObjects(listCtx, bucket, minio.ListObjectsOptions{
		Prefix:    keyPrefix,
		Recursive: true,
	})

	pathPrefix := bucketPathPrefix(b.bucket, bucket)
	entries := make(chan listEntry)
	go func() {
		defer close(entries)
		for obj := range objects {
			var entry listEntry
			if obj.Err != nil {
				entry = listEntry{err: b.mapError(obj.Err)}
			} else {
				entry = listEntry{path: pathPrefix + obj.Key}
			}
			select {
			case entries <- entry:
			case <-listCtx.Done():
				return
			}
		}
	}()

	return newChannelIterator(entries, cancel), nil
}

// Stat returns the object's size and content type.
func (b *MinioBackend) Stat(ctx context.Context, blobPath string) (interfaces.ObjectInfo, error) {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return interfaces.ObjectInfo{}, err
	}

	info, err := b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return interfaces.ObjectInfo{}, b.mapError(err)
	}
	return interfaces.ObjectInfo{
		Path:        blobPath,
		Size:        info.Size,
		ContentType: info.ContentType,
	}, nil
}

// Name returns a unique identifier for this storage backend.
func (b *MinioBackend) Name() string {
	return fmt.Sprintf("minio-%s", b.client.EndpointURL().Host)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MinioBackend) LocationURI() string {
	return b.locationURI
}

// resolve splits a logical blob path into bucket and object key.
func (b *MinioBackend) resolve(blobPath string, needKey bool) (bucket, key string, err error) {
	p := strings.TrimPrefix(blobPath, "/")

	if b.bucket != "" {
		bucket, key = b.bucket, p
	} else {
		bucket, key, _ = strings.Cut(p, "/")
		if bucket == "" {
			return "", "", fmt.Errorf("%w: missing bucket in path %q", interfaces.ErrMalformedLocator, blobPath)
		}
	}
	if needKey && key == "" {
		return "", "", fmt.Errorf("%w: missing object key in path %q", interfaces.ErrMalformedLocator, blobPath)
	}
	return bucket, key, nil
}

// mapError translates MinIO SDK faults into the uniform taxonomy.
func (b *MinioBackend) mapError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return interfaces.ErrNotFound
	case "AccessDenied", "SlowDown", "RequestTimeout":
		return fmt.Errorf("%w: %s", interfaces.ErrBackendUnavailable, resp.Message)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return interfaces.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", interfaces.ErrBackendUnavailable, resp.Message)
	}
	if resp.Code == "" && resp.StatusCode == 0 {
		// Not an API error response: connection-level fault.
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%w: %s: %s", interfaces.ErrBackendFault, resp.Code, resp.Message)
}
