package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/siilo/siilo/interfaces"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBackend implements a storage backend on Google Cloud Storage.
//
// As with S3Backend, a bound bucket makes blob paths plain object names;
// without one the first path segment names the bucket. Object writes are
// atomic (GCS commits on writer close). Delete maps the service's native
// not-found error directly, no pre-check needed. Listing order is the
// service's native order.
type GCSBackend struct {
	client      *gcs.Client
	bucket      string
	log         *slog.Logger
	locationURI string
}

// NewGCSBackend creates a Google Cloud Storage backend. opts configure the
// underlying client: option.WithCredentialsFile for service accounts,
// option.WithEndpoint plus option.WithoutAuthentication for emulators.
func NewGCSBackend(ctx context.Context, bucket string, log *slog.Logger, opts ...option.ClientOption) (*GCSBackend, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSBackend{
		client:      client,
		bucket:      bucket,
		log:         log,
		locationURI: fmt.Sprintf("gs://%s", bucket),
	}, nil
}

// Put uploads data to the object addressed by path.
func (b *GCSBackend) Put(ctx context.Context, blobPath string, data []byte, contentType string) error {
	bucket, name, err := b.resolve(blobPath, true)
	if err != nil {
		return err
	}

	w := b.client.Bucket(bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return b.mapError(err)
	}
	if err := w.Close(); err != nil {
		return b.mapError(err)
	}

	b.log.Debug("Stored blob in GCS",
		slog.String("bucket", bucket),
		slog.String("object", name),
		slog.Int("size", len(data)))

	return nil
}

// Get downloads the object addressed by path.
func (b *GCSBackend) Get(ctx context.Context, blobPath string) ([]byte, error) {
	bucket, name, err := b.resolve(blobPath, true)
	if err != nil {
		return nil, err
	}

	r, err := b.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, b.mapError(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading object body: %v", interfaces.ErrBackendFault, err)
	}
	return data, nil
}

// Exists checks the object's attributes.
func (b *GCSBackend) Exists(ctx context.Context, blobPath string) (bool, error) {
	bucket, name, err := b.resolve(blobPath, true)
	if err != nil {
		return false, err
	}

	_, err = b.client.Bucket(bucket).Object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, b.mapError(err)
	}
	return true, nil
}

// Delete removes the object addressed by path.
func (b *GCSBackend) Delete(ctx context.Context, blobPath string) error {
	bucket, name, err := b.resolve(blobPath, true)
	if err != nil {
		return err
	}

	if err := b.client.Bucket(bucket).Object(name).Delete(ctx); err != nil {
		return b.mapError(err)
	}
	return nil
}

// List streams object names under the given prefix using the service's
// native pagination.
func (b *GCSBackend) List(ctx context.Context, prefix string) (interfaces.ObjectIterator, error) {
	bucket, namePrefix, err := b.resolve(prefix, false)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(namePrefix, "/") {
		namePrefix += "/"
	}

	it := b.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: namePrefix})
	return &gcsIterator{
		backend:    b,
		it:         it,
		pathPrefix: bucketPathPrefix(b.bucket, bucket),
	}, nil
}

// Stat returns the object's size and content type.
func (b *GCSBackend) Stat(ctx context.Context, blobPath string) (interfaces.ObjectInfo, error) {
	bucket, name, err := b.resolve(blobPath, true)
	if err != nil {
		return interfaces.ObjectInfo{}, err
	}

	attrs, err := b.client.Bucket(bucket).Object(name).Attrs(ctx)
	if err != nil {
		return interfaces.ObjectInfo{}, b.mapError(err)
	}
	return interfaces.ObjectInfo{
		Path:        blobPath,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
	}, nil
}

// Name returns a unique identifier for this storage backend.
func (b *GCSBackend) Name() string {
	if b.bucket != "" {
		return fmt.Sprintf("gcs-%s", b.bucket)
	}
	return "gcs"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *GCSBackend) LocationURI() string {
	return b.locationURI
}

// Close releases the underlying client connection.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}

// resolve splits a logical blob path into bucket and object name.
func (b *GCSBackend) resolve(blobPath string, needName bool) (bucket, name string, err error) {
	p := strings.TrimPrefix(blobPath, "/")

	if b.bucket != "" {
		bucket, name = b.bucket, p
	} else {
		bucket, name, _ = strings.Cut(p, "/")
		if bucket == "" {
			return "", "", fmt.Errorf("%w: missing bucket in path %q", interfaces.ErrMalformedLocator, blobPath)
		}
	}
	if needName && name == "" {
		return "", "", fmt.Errorf("%w: missing object name in path %q", interfaces.ErrMalformedLocator, blobPath)
	}
	return bucket, name, nil
}

// mapError translates GCS client faults into the uniform taxonomy.
func (b *GCSBackend) mapError(err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return interfaces.ErrNotFound
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return interfaces.ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests,
			http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %s", interfaces.ErrBackendUnavailable, gerr.Message)
		default:
			return fmt.Errorf("%w: %s", interfaces.ErrBackendFault, gerr.Message)
		}
	}
	return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
}

// gcsIterator adapts the native object iterator. The native iterator holds
// only pagination state, so Close just stops iteration.
type gcsIterator struct {
	backend    *GCSBackend
	it         *gcs.ObjectIterator
	pathPrefix string
	closed     bool
}

func (it *gcsIterator) Next(_ context.Context) (string, error) {
	if it.closed {
		return "", io.EOF
	}
	attrs, err := it.it.Next()
	if errors.Is(err, iterator.Done) {
		return "", io.EOF
	}
	if err != nil {
		return "", it.backend.mapError(err)
	}
	return it.pathPrefix + attrs.Name, nil
}

func (it *gcsIterator) Close() error {
	it.closed = true
	return nil
}
