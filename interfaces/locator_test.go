package interfaces

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantScheme string
		wantPath   string
		wantErr    bool
	}{
		{
			name:       "file locator",
			input:      "file:///var/data/report.pdf",
			wantScheme: "file",
			wantPath:   "/var/data/report.pdf",
		},
		{
			name:       "s3 locator",
			input:      "s3://my-bucket/report.pdf",
			wantScheme: "s3",
			wantPath:   "my-bucket/report.pdf",
		},
		{
			name:       "cmis locator",
			input:      "cmis://repo/documents/report.pdf",
			wantScheme: "cmis",
			wantPath:   "repo/documents/report.pdf",
		},
		{
			name:       "uppercase scheme preserved",
			input:      "S3://bucket/key",
			wantScheme: "S3",
			wantPath:   "bucket/key",
		},
		{
			name:       "trailing slash preserved",
			input:      "mem://x/",
			wantScheme: "mem",
			wantPath:   "x/",
		},
		{
			name:    "missing delimiter",
			input:   "file:/var/data",
			wantErr: true,
		},
		{
			name:    "empty scheme",
			input:   "://path",
			wantErr: true,
		},
		{
			name:    "empty path",
			input:   "s3://",
			wantErr: true,
		},
		{
			name:    "scheme with invalid characters",
			input:   "s3 bucket://key",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseLocator(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedLocator), "expected ErrMalformedLocator, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, loc.Scheme)
			assert.Equal(t, tt.wantPath, loc.Path)
		})
	}
}

func TestLocatorRoundTrip(t *testing.T) {
	inputs := []string{
		"file:///var/data/report.pdf",
		"s3://my-bucket/a/b/c.txt",
		"mem://x/y.txt",
		"vault://secret/app/token",
		"gs://bucket/dir/",
		"ipfs://data/report.bin",
	}

	for _, in := range inputs {
		loc, err := ParseLocator(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, loc.String(), "parse/reconstruct must be lossless")
	}
}
