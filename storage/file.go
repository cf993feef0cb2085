package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/siilo/siilo/interfaces"
)

// FileBackend implements a storage backend on the local file system.
// Blob paths are resolved beneath a base directory; "." and ".." segments
// are collapsed against a virtual root, so a path can never escape the base
// directory.
//
// Overwrite is atomic: Put writes to a temporary file in the target
// directory and renames it into place. Content types are not persisted;
// Stat reports an empty content type.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir,
// creating the directory if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     abs,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", abs),
	}, nil
}

// Put writes data to the file at path, creating parent directories as
// needed. The write is temp-file plus rename, so concurrent readers see
// either the old or the new content, never a partial file.
func (b *FileBackend) Put(ctx context.Context, blobPath string, data []byte, contentType string) error {
	filePath := b.filePath(blobPath)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return b.mapError(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".siilo-put-*")
	if err != nil {
		return b.mapError(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return b.mapError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return b.mapError(err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return b.mapError(err)
	}

	b.log.Debug("Stored blob in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// Get reads the file at path.
func (b *FileBackend) Get(ctx context.Context, blobPath string) ([]byte, error) {
	data, err := os.ReadFile(b.filePath(blobPath))
	if err != nil {
		return nil, b.mapError(err)
	}

	b.log.Debug("Fetched blob from file",
		slog.String("path", blobPath),
		slog.Int("size", len(data)))

	return data, nil
}

// Exists reports whether a regular file is present at path.
func (b *FileBackend) Exists(ctx context.Context, blobPath string) (bool, error) {
	info, err := os.Stat(b.filePath(blobPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, b.mapError(err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the file at path.
func (b *FileBackend) Delete(ctx context.Context, blobPath string) error {
	if err := os.Remove(b.filePath(blobPath)); err != nil {
		return b.mapError(err)
	}
	return nil
}

// List walks the directory implied by prefix and yields the paths of all
// files whose logical path begins with prefix. The snapshot is taken
// eagerly (local directory walks are cheap); yielded paths preserve the
// form of the given prefix, so listing "/x/" yields "/x/y.txt".
func (b *FileBackend) List(ctx context.Context, prefix string) (interfaces.ObjectIterator, error) {
	rel := relPath(prefix)
	// A trailing slash is significant: "x/" matches only blobs inside x.
	if strings.HasSuffix(prefix, "/") && rel != "" {
		rel += "/"
	}

	// Walk only the directory the prefix already pins down.
	var walkRoot string
	if strings.HasSuffix(rel, "/") || rel == "" {
		walkRoot = filepath.Join(b.baseDir, filepath.FromSlash(strings.TrimSuffix(rel, "/")))
	} else {
		walkRoot = filepath.Join(b.baseDir, filepath.FromSlash(path.Dir(rel)))
	}
	if _, err := os.Stat(walkRoot); os.IsNotExist(err) {
		return newSliceIterator(nil), nil
	}

	var paths []string
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		relToBase, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		logical := filepath.ToSlash(relToBase)
		if strings.HasPrefix(logical, rel) {
			// Re-attach the caller's prefix form verbatim.
			paths = append(paths, prefix+logical[len(rel):])
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, b.mapError(err)
	}

	return newSliceIterator(paths), nil
}

// Stat returns the file's size. Content type is not tracked by this
// backend.
func (b *FileBackend) Stat(ctx context.Context, blobPath string) (interfaces.ObjectInfo, error) {
	info, err := os.Stat(b.filePath(blobPath))
	if err != nil {
		return interfaces.ObjectInfo{}, b.mapError(err)
	}
	if !info.Mode().IsRegular() {
		return interfaces.ObjectInfo{}, interfaces.ErrNotFound
	}
	return interfaces.ObjectInfo{
		Path: blobPath,
		Size: info.Size(),
	}, nil
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// filePath maps a logical blob path to a file system path under baseDir.
func (b *FileBackend) filePath(blobPath string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(relPath(blobPath)))
}

// relPath collapses a logical path against a virtual root so that dot
// segments cannot traverse above the base directory, then strips the
// leading slash. "/x/y.txt" and "x/y.txt" address the same blob.
func relPath(blobPath string) string {
	return strings.TrimPrefix(path.Clean("/"+blobPath), "/")
}

// mapError translates file system faults into the uniform taxonomy.
func (b *FileBackend) mapError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return interfaces.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
	}
}
