package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/siilo/siilo/interfaces"
)

// IPFSBackend implements a storage backend on an IPFS node's Mutable File
// System (the files API), which gives IPFS the path addressing the uniform
// contract requires. Blob paths live under a configurable MFS root
// directory.
//
// MFS writes replace the file's content in one files/write call; the node
// applies them atomically per path. Content types are not tracked by MFS;
// Stat reports an empty content type. Listing walks the MFS directory tree
// and is a snapshot.
type IPFSBackend struct {
	shell       *shell.Shell
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates an IPFS storage backend connected to the node's
// API at host:port, storing blobs under the given MFS root directory
// ("/siilo" when empty).
func NewIPFSBackend(host, port, root string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	if root == "" {
		root = "/siilo"
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	root = strings.TrimSuffix(root, "/")

	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiURL, root),
	}, nil
}

// Put writes data to the MFS path, creating parent directories.
func (b *IPFSBackend) Put(ctx context.Context, blobPath string, data []byte, contentType string) error {
	if !b.shell.IsUp() {
		return interfaces.ErrBackendUnavailable
	}

	mfsPath := b.mfsPath(blobPath)
	err := b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true),
	)
	if err != nil {
		return b.mapError(err)
	}

	b.log.Debug("Stored blob in IPFS MFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)))

	return nil
}

// Get reads the file at the MFS path.
func (b *IPFSBackend) Get(ctx context.Context, blobPath string) ([]byte, error) {
	if !b.shell.IsUp() {
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, b.mfsPath(blobPath))
	if err != nil {
		return nil, b.mapError(err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading MFS stream: %v", interfaces.ErrBackendFault, err)
	}
	return data, nil
}

// Exists stats the MFS path.
func (b *IPFSBackend) Exists(ctx context.Context, blobPath string) (bool, error) {
	if !b.shell.IsUp() {
		return false, interfaces.ErrBackendUnavailable
	}

	_, err := b.shell.FilesStat(ctx, b.mfsPath(blobPath))
	if err != nil {
		mapped := b.mapError(err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// Delete removes the file at the MFS path.
func (b *IPFSBackend) Delete(ctx context.Context, blobPath string) error {
	if !b.shell.IsUp() {
		return interfaces.ErrBackendUnavailable
	}

	if err := b.shell.FilesRm(ctx, b.mfsPath(blobPath), true); err != nil {
		return b.mapError(err)
	}
	return nil
}

// List walks the MFS tree under the prefix's directory and yields matching
// file paths. Snapshot semantics.
func (b *IPFSBackend) List(ctx context.Context, prefix string) (interfaces.ObjectIterator, error) {
	if !b.shell.IsUp() {
		return nil, interfaces.ErrBackendUnavailable
	}

	logical := strings.TrimPrefix(prefix, "/")
	startDir := logical
	if !strings.HasSuffix(startDir, "/") {
		if idx := strings.LastIndex(startDir, "/"); idx >= 0 {
			startDir = startDir[:idx+1]
		} else {
			startDir = ""
		}
	}

	var paths []string
	if err := b.walk(ctx, strings.TrimSuffix(startDir, "/"), logical, &paths); err != nil {
		return nil, err
	}

	// Report paths in the caller's form.
	if strings.HasPrefix(prefix, "/") {
		for i := range paths {
			paths[i] = "/" + paths[i]
		}
	}
	return newSliceIterator(paths), nil
}

// Stat returns the MFS file's size.
func (b *IPFSBackend) Stat(ctx context.Context, blobPath string) (interfaces.ObjectInfo, error) {
	if !b.shell.IsUp() {
		return interfaces.ObjectInfo{}, interfaces.ErrBackendUnavailable
	}

	stat, err := b.shell.FilesStat(ctx, b.mfsPath(blobPath))
	if err != nil {
		return interfaces.ObjectInfo{}, b.mapError(err)
	}
	if stat.Type != "file" {
		return interfaces.ObjectInfo{}, interfaces.ErrNotFound
	}
	return interfaces.ObjectInfo{
		Path: blobPath,
		Size: int64(stat.Size),
	}, nil
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s", strings.TrimPrefix(b.root, "/"))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// mfsPath maps a logical blob path into the backend's MFS root.
func (b *IPFSBackend) mfsPath(blobPath string) string {
	return b.root + path.Clean("/"+blobPath)
}

// walk recursively collects logical file paths under dir (root-relative,
// no leading slash) that match the logical prefix.
func (b *IPFSBackend) walk(ctx context.Context, dir, logicalPrefix string, out *[]string) error {
	mfsDir := b.root
	if dir != "" {
		mfsDir = b.root + "/" + dir
	}

	entries, err := b.shell.FilesLs(ctx, mfsDir, shell.FilesLs.Stat(true))
	if err != nil {
		mapped := b.mapError(err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return nil
		}
		return mapped
	}

	for _, entry := range entries {
		childPath := entry.Name
		if dir != "" {
			childPath = dir + "/" + entry.Name
		}

		switch entry.Type {
		case shell.TDirectory:
			if strings.HasPrefix(childPath+"/", logicalPrefix) || strings.HasPrefix(logicalPrefix, childPath+"/") {
				if err := b.walk(ctx, childPath, logicalPrefix, out); err != nil {
					return err
				}
			}
		case shell.TFile:
			if strings.HasPrefix(childPath, logicalPrefix) {
				*out = append(*out, childPath)
			}
		}
	}
	return nil
}

// mapError translates IPFS API faults into the uniform taxonomy.
func (b *IPFSBackend) mapError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "file does not exist"),
		strings.Contains(msg, "no link named"),
		strings.Contains(msg, "not a directory"):
		return interfaces.ErrNotFound
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "context deadline exceeded"),
		strings.Contains(msg, "i/o timeout"):
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
	}
}
