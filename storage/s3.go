package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/siilo/siilo/interfaces"
)

// S3Backend implements a storage backend on Amazon S3 or compatible
// services.
//
// When constructed with a bucket, blob paths are object keys within it.
// When constructed without one, the first path segment names the bucket
// (s3://my-bucket/report.pdf style locators).
//
// Put overwrites atomically: S3 object writes are all-or-nothing. Delete is
// NOT atomic with respect to the existence check: S3's native delete is a
// silent no-op for absent keys, so the adapter stats the object first to
// honor the not-found contract; a concurrent delete can win the race.
// Listing order is whatever S3 returns (lexicographic by key in practice,
// but not promised by this adapter).
type S3Backend struct {
	client      *s3.S3
	bucket      string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates an S3 storage backend.
//
// bucket may be empty, in which case the first segment of each blob path
// selects the bucket. prefix, when set, is prepended to every object key.
// endpoint overrides the AWS endpoint for S3-compatible services. When
// accessKey and secretKey are empty the default credential chain applies
// (environment, shared config, instance role).
func NewS3Backend(bucket, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	uri := fmt.Sprintf("s3://%s?region=%s", bucket, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	return &S3Backend{
		client:      s3.New(sess),
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// Put uploads data to the object addressed by path.
func (b *S3Backend) Put(ctx context.Context, blobPath string, data []byte, contentType string) error {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := b.client.PutObjectWithContext(ctx, input); err != nil {
		return b.mapError(err)
	}

	b.log.Debug("Stored blob in S3",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("size", len(data)))

	return nil
}

// Get downloads the object addressed by path.
func (b *S3Backend) Get(ctx context.Context, blobPath string) ([]byte, error) {
	start := time.Now()
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return nil, err
	}

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, b.mapError(err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading object body: %v", interfaces.ErrBackendFault, err)
	}

	b.log.Debug("Fetched blob from S3",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Exists heads the object addressed by path.
func (b *S3Backend) Exists(ctx context.Context, blobPath string) (bool, error) {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return false, err
	}

	_, err = b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		mapped := b.mapError(err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// Delete removes the object addressed by path. S3's DeleteObject succeeds
// for absent keys, so the object is stat'ed first; see the type comment for
// the atomicity caveat.
func (b *S3Backend) Delete(ctx context.Context, blobPath string) error {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return err
	}

	if _, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return b.mapError(err)
	}

	if _, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return b.mapError(err)
	}
	return nil
}

// List streams object keys under the given prefix, one S3 page at a time.
func (b *S3Backend) List(ctx context.Context, prefix string) (interfaces.ObjectIterator, error) {
	bucket, keyPrefix, err := b.resolve(prefix, false)
	if err != nil {
		return nil, err
	}
	// resolve trims slashes during cleaning; a trailing slash in the
	// logical prefix is significant to key matching and must survive.
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}

	return &s3Iterator{
		backend:    b,
		bucket:     bucket,
		pathPrefix: bucketPathPrefix(b.bucket, bucket),
		input: &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(keyPrefix),
		},
	}, nil
}

// Stat heads the object addressed by path.
func (b *S3Backend) Stat(ctx context.Context, blobPath string) (interfaces.ObjectInfo, error) {
	bucket, key, err := b.resolve(blobPath, true)
	if err != nil {
		return interfaces.ObjectInfo{}, err
	}

	head, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return interfaces.ObjectInfo{}, b.mapError(err)
	}

	info := interfaces.ObjectInfo{Path: blobPath}
	if head.ContentLength != nil {
		info.Size = *head.ContentLength
	}
	if head.ContentType != nil {
		info.ContentType = *head.ContentType
	}
	return info, nil
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	if b.bucket != "" {
		return fmt.Sprintf("s3-%s", b.bucket)
	}
	return "s3"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

// resolve splits a logical blob path into bucket and object key. With a
// bound bucket the whole path is the key; otherwise the first segment is
// the bucket. needKey requires a non-empty key (Get/Put/Delete address an
// object, List may address a whole bucket).
func (b *S3Backend) resolve(blobPath string, needKey bool) (bucket, key string, err error) {
	p := strings.TrimPrefix(blobPath, "/")

	if b.bucket != "" {
		bucket, key = b.bucket, p
	} else {
		bucket, key, _ = strings.Cut(p, "/")
		if bucket == "" {
			return "", "", fmt.Errorf("%w: missing bucket in path %q", interfaces.ErrMalformedLocator, blobPath)
		}
	}

	if b.prefix != "" {
		key = path.Join(b.prefix, key)
	}
	if needKey && key == "" {
		return "", "", fmt.Errorf("%w: missing object key in path %q", interfaces.ErrMalformedLocator, blobPath)
	}
	return bucket, key, nil
}

// mapError translates AWS SDK faults into the uniform taxonomy.
func (b *S3Backend) mapError(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return interfaces.ErrNotFound
		case "RequestCanceled", "RequestError", "AccessDenied", "Forbidden", "SlowDown", "ServiceUnavailable":
			return fmt.Errorf("%w: %s", interfaces.ErrBackendUnavailable, aerr.Message())
		}
		var rerr awserr.RequestFailure
		if errors.As(err, &rerr) {
			switch rerr.StatusCode() {
			case http.StatusNotFound:
				return interfaces.ErrNotFound
			case http.StatusForbidden, http.StatusUnauthorized,
				http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
				return fmt.Errorf("%w: %s", interfaces.ErrBackendUnavailable, rerr.Message())
			}
		}
		return fmt.Errorf("%w: %s: %s", interfaces.ErrBackendFault, aerr.Code(), aerr.Message())
	}
	return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
}

// bucketPathPrefix is what gets prepended to keys when reporting listed
// paths: the bucket segment when buckets are path-addressed, nothing when
// the backend is bound to a single bucket.
func bucketPathPrefix(boundBucket, bucket string) string {
	if boundBucket != "" {
		return ""
	}
	return bucket + "/"
}

// s3Iterator pages through ListObjectsV2 results lazily. It holds no
// connection between calls, so Close has nothing to release.
type s3Iterator struct {
	backend    *S3Backend
	bucket     string
	pathPrefix string
	input      *s3.ListObjectsV2Input
	page       []string
	pos        int
	done       bool
}

func (it *s3Iterator) Next(ctx context.Context) (string, error) {
	for it.pos >= len(it.page) {
		if it.done {
			return "", io.EOF
		}

		out, err := it.backend.client.ListObjectsV2WithContext(ctx, it.input)
		if err != nil {
			it.done = true
			return "", it.backend.mapError(err)
		}

		it.page = it.page[:0]
		it.pos = 0
		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			if it.backend.prefix != "" {
				key = strings.TrimPrefix(strings.TrimPrefix(key, it.backend.prefix), "/")
			}
			it.page = append(it.page, it.pathPrefix+key)
		}

		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			it.input.ContinuationToken = out.NextContinuationToken
		} else {
			it.done = true
		}
	}

	item := it.page[it.pos]
	it.pos++
	return item, nil
}

func (it *s3Iterator) Close() error {
	it.done = true
	it.page = nil
	it.pos = 0
	return nil
}
