package storage

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/siilo/siilo/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3Backend(t *testing.T, bucket, prefix string) *S3Backend {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := NewS3Backend(bucket, prefix, "us-east-1", "", "", "", logger)
	require.NoError(t, err)
	return backend
}

func TestS3Resolve(t *testing.T) {
	tests := []struct {
		name       string
		bucket     string
		prefix     string
		path       string
		needKey    bool
		wantBucket string
		wantKey    string
		wantErr    error
	}{
		{
			name:       "bound bucket uses whole path as key",
			bucket:     "data",
			path:       "reports/q1.pdf",
			needKey:    true,
			wantBucket: "data",
			wantKey:    "reports/q1.pdf",
		},
		{
			name:       "unbound bucket takes first segment",
			path:       "my-bucket/report.pdf",
			needKey:    true,
			wantBucket: "my-bucket",
			wantKey:    "report.pdf",
		},
		{
			name:       "leading slash is stripped",
			bucket:     "data",
			path:       "/reports/q1.pdf",
			needKey:    true,
			wantBucket: "data",
			wantKey:    "reports/q1.pdf",
		},
		{
			name:       "configured prefix is prepended",
			bucket:     "data",
			prefix:     "tenants/acme",
			path:       "report.pdf",
			needKey:    true,
			wantBucket: "data",
			wantKey:    "tenants/acme/report.pdf",
		},
		{
			name:    "unbound bucket with empty path",
			path:    "",
			needKey: true,
			wantErr: interfaces.ErrMalformedLocator,
		},
		{
			name:    "bucket without key where key is required",
			path:    "only-bucket",
			needKey: true,
			wantErr: interfaces.ErrMalformedLocator,
		},
		{
			name:       "bucket without key is fine for listing",
			path:       "only-bucket",
			needKey:    false,
			wantBucket: "only-bucket",
			wantKey:    "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := newTestS3Backend(t, tc.bucket, tc.prefix)

			bucket, key, err := backend.resolve(tc.path, tc.needKey)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantBucket, bucket)
			assert.Equal(t, tc.wantKey, key)
		})
	}
}

func TestBucketPathPrefix(t *testing.T) {
	assert.Equal(t, "", bucketPathPrefix("bound", "bound"))
	assert.Equal(t, "my-bucket/", bucketPathPrefix("", "my-bucket"))
}

func TestS3ErrorMapping(t *testing.T) {
	backend := newTestS3Backend(t, "data", "")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "missing key",
			err:  awserr.New("NoSuchKey", "The specified key does not exist.", nil),
			want: interfaces.ErrNotFound,
		},
		{
			name: "missing bucket",
			err:  awserr.New("NoSuchBucket", "The specified bucket does not exist.", nil),
			want: interfaces.ErrNotFound,
		},
		{
			name: "head-request not found",
			err:  awserr.New("NotFound", "Not Found", nil),
			want: interfaces.ErrNotFound,
		},
		{
			name: "connection failure is unavailability",
			err:  awserr.New("RequestError", "send request failed", errors.New("connection refused")),
			want: interfaces.ErrBackendUnavailable,
		},
		{
			name: "access denied is unavailability",
			err:  awserr.New("AccessDenied", "Access Denied", nil),
			want: interfaces.ErrBackendUnavailable,
		},
		{
			name: "404 request failure without a code",
			err:  awserr.NewRequestFailure(awserr.New("", "", nil), http.StatusNotFound, "req-1"),
			want: interfaces.ErrNotFound,
		},
		{
			name: "503 request failure",
			err:  awserr.NewRequestFailure(awserr.New("", "", nil), http.StatusServiceUnavailable, "req-2"),
			want: interfaces.ErrBackendUnavailable,
		},
		{
			name: "unrecognized service error is a fault",
			err:  awserr.New("MalformedXML", "The XML was malformed", nil),
			want: interfaces.ErrBackendFault,
		},
		{
			name: "plain error is unavailability",
			err:  errors.New("dial tcp: i/o timeout"),
			want: interfaces.ErrBackendUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mapped := backend.mapError(tc.err)
			assert.True(t, errors.Is(mapped, tc.want), "got %v", mapped)
		})
	}
}
