package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/siilo/siilo/interfaces"
)

// VaultBackend implements a storage backend on HashiCorp Vault's KV v2
// secrets engine. Each blob is one secret whose data carries the content
// (base64, so arbitrary bytes survive the JSON transport) and its content
// type.
//
// Writes are atomic per secret (a single KV put). Delete destroys the
// secret's metadata and all versions; it reads the metadata first to honor
// the not-found contract, which is not atomic with the destroy. Listing
// walks the metadata tree level by level and is a snapshot.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path prefix within the mount (may be empty)
//   - token: Vault token; empty falls back to the client's env configuration
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Put writes the blob as a KV v2 secret.
func (b *VaultBackend) Put(ctx context.Context, blobPath string, data []byte, contentType string) error {
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content":      base64.StdEncoding.EncodeToString(data),
			"content_type": contentType,
		},
	}

	path := b.secretPath("data", blobPath)
	if _, err := b.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return b.mapError(err)
	}

	b.log.Debug("Stored blob in Vault",
		slog.String("path", path),
		slog.Int("size", len(data)))

	return nil
}

// Get reads the blob's secret and decodes its content.
func (b *VaultBackend) Get(ctx context.Context, blobPath string) ([]byte, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.secretPath("data", blobPath))
	if err != nil {
		return nil, b.mapError(err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrNotFound
	}

	data, _, err := decodeKVContent(secret)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Exists reads the blob's metadata.
func (b *VaultBackend) Exists(ctx context.Context, blobPath string) (bool, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.secretPath("metadata", blobPath))
	if err != nil {
		mapped := b.mapError(err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return secret != nil && secret.Data != nil, nil
}

// Delete destroys the blob's secret: metadata and every version. Reads the
// metadata first so an absent path reports not found; see the type comment
// for the atomicity caveat.
func (b *VaultBackend) Delete(ctx context.Context, blobPath string) error {
	metaPath := b.secretPath("metadata", blobPath)

	secret, err := b.client.Logical().ReadWithContext(ctx, metaPath)
	if err != nil {
		return b.mapError(err)
	}
	if secret == nil || secret.Data == nil {
		return interfaces.ErrNotFound
	}

	if _, err := b.client.Logical().DeleteWithContext(ctx, metaPath); err != nil {
		return b.mapError(err)
	}
	return nil
}

// List walks the KV metadata tree under the prefix's directory and yields
// matching secret paths. Snapshot semantics; Vault returns keys sorted but
// this adapter does not promise an order.
func (b *VaultBackend) List(ctx context.Context, prefix string) (interfaces.ObjectIterator, error) {
	logical := strings.TrimPrefix(prefix, "/")
	startDir := ""
	if idx := strings.LastIndex(logical, "/"); idx >= 0 {
		startDir = logical[:idx]
	}

	var paths []string
	if err := b.walk(ctx, startDir, logical, &paths); err != nil {
		return nil, err
	}

	if strings.HasPrefix(prefix, "/") {
		for i := range paths {
			paths[i] = "/" + paths[i]
		}
	}
	return newSliceIterator(paths), nil
}

// Stat reads the blob's secret and reports decoded size and content type.
func (b *VaultBackend) Stat(ctx context.Context, blobPath string) (interfaces.ObjectInfo, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.secretPath("data", blobPath))
	if err != nil {
		return interfaces.ObjectInfo{}, b.mapError(err)
	}
	if secret == nil || secret.Data == nil {
		return interfaces.ObjectInfo{}, interfaces.ErrNotFound
	}

	data, contentType, err := decodeKVContent(secret)
	if err != nil {
		return interfaces.ObjectInfo{}, err
	}
	return interfaces.ObjectInfo{
		Path:        blobPath,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

// secretPath builds the KV v2 API path ({mount}/{data|metadata}/{prefix}/{blob}).
func (b *VaultBackend) secretPath(kind, blobPath string) string {
	p := strings.TrimPrefix(blobPath, "/")
	if b.dataPath != "" {
		p = b.dataPath + "/" + p
	}
	return fmt.Sprintf("%s/%s/%s", b.mountPath, kind, p)
}

// walk recursively lists the metadata tree under dir (no leading slash)
// collecting secret paths matching the logical prefix.
func (b *VaultBackend) walk(ctx context.Context, dir, logicalPrefix string, out *[]string) error {
	listPath := b.secretPath("metadata", dir)
	secret, err := b.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		mapped := b.mapError(err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return nil
		}
		return mapped
	}
	if secret == nil || secret.Data == nil {
		return nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil
	}

	for _, raw := range keys {
		key, ok := raw.(string)
		if !ok {
			continue
		}
		childPath := key
		if dir != "" {
			childPath = dir + "/" + key
		}

		if strings.HasSuffix(key, "/") {
			sub := strings.TrimSuffix(childPath, "/")
			if strings.HasPrefix(sub+"/", logicalPrefix) || strings.HasPrefix(logicalPrefix, sub+"/") {
				if err := b.walk(ctx, sub, logicalPrefix, out); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasPrefix(childPath, logicalPrefix) {
			*out = append(*out, childPath)
		}
	}
	return nil
}

// decodeKVContent extracts and decodes the blob payload from a KV v2 read.
func decodeKVContent(secret *api.Secret) ([]byte, string, error) {
	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// KV v2 returns data: null for soft-deleted versions.
		return nil, "", interfaces.ErrNotFound
	}

	encoded, ok := inner["content"].(string)
	if !ok {
		return nil, "", fmt.Errorf("%w: secret has no content field", interfaces.ErrBackendFault)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid content encoding: %v", interfaces.ErrBackendFault, err)
	}

	contentType, _ := inner["content_type"].(string)
	return data, contentType, nil
}

// mapError translates Vault API faults into the uniform taxonomy.
func (b *VaultBackend) mapError(err error) error {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return interfaces.ErrNotFound
		case http.StatusForbidden, http.StatusUnauthorized,
			http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
		}
	}
	return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
}
