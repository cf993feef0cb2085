package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/siilo/siilo/interfaces"
)

// CMISBackend implements a storage backend on a CMIS 1.1 repository
// (Alfresco, Nuxeo, Apache Chemistry servers) using the browser binding:
// JSON over HTTP, basic authentication.
//
// Blob paths map to repository paths under the root folder. Put on a nested
// path creates missing intermediate folders, then creates or overwrites the
// document; none of this is atomic; a crash mid-Put can leave empty
// folders or a document with stale content. Repositories that version
// documents keep their native versioning semantics; Delete removes all
// versions. Listing enumerates the folder tree via the children selector
// and is a snapshot, ordered however the repository returns children.
type CMISBackend struct {
	rootURL     string
	username    string
	password    string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

// cmisObject is the browser-binding JSON shape of an object with succinct
// properties.
type cmisObject struct {
	Properties map[string]any `json:"succinctProperties"`
}

// cmisChildren is the browser-binding JSON shape of a children listing.
type cmisChildren struct {
	Objects []struct {
		Object cmisObject `json:"object"`
	} `json:"objects"`
}

// cmisError is the browser-binding JSON error body.
type cmisError struct {
	Exception string `json:"exception"`
	Message   string `json:"message"`
}

// NewCMISBackend creates a CMIS storage backend.
//
// rootURL is the repository's browser-binding root folder URL, e.g.
// http://cms.example.com/alfresco/api/-default-/public/cmis/versions/1.1/browser/root
func NewCMISBackend(rootURL, username, password string, log *slog.Logger) (*CMISBackend, error) {
	parsed, err := url.Parse(rootURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid CMIS root URL: %q", rootURL)
	}

	return &CMISBackend{
		rootURL:     strings.TrimSuffix(rootURL, "/"),
		username:    username,
		password:    password,
		client:      &http.Client{Timeout: 60 * time.Second},
		log:         log,
		locationURI: fmt.Sprintf("cmis://%s%s", parsed.Host, parsed.Path),
	}, nil
}

// Put creates or overwrites the document at path, creating intermediate
// folders as needed. Not atomic; see the type comment.
func (b *CMISBackend) Put(ctx context.Context, blobPath string, data []byte, contentType string) error {
	docPath := repoPath(blobPath)

	exists, err := b.Exists(ctx, blobPath)
	if err != nil {
		return err
	}

	if exists {
		if err := b.setContent(ctx, docPath, data, contentType); err != nil {
			return err
		}
	} else {
		dir, name := path.Split(docPath)
		if err := b.ensureFolders(ctx, strings.TrimSuffix(dir, "/")); err != nil {
			return err
		}
		if err := b.createDocument(ctx, strings.TrimSuffix(dir, "/"), name, data, contentType); err != nil {
			return err
		}
	}

	b.log.Debug("Stored blob in CMIS",
		slog.String("path", docPath),
		slog.Int("size", len(data)))

	return nil
}

// Get downloads the document's content stream.
func (b *CMISBackend) Get(ctx context.Context, blobPath string) ([]byte, error) {
	resp, err := b.get(ctx, repoPath(blobPath), url.Values{"cmisselector": {"content"}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading content stream: %v", interfaces.ErrBackendFault, err)
	}
	return data, nil
}

// Exists looks the object up by path.
func (b *CMISBackend) Exists(ctx context.Context, blobPath string) (bool, error) {
	_, err := b.objectByPath(ctx, repoPath(blobPath))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the document at path, all versions included. Repositories
// answer a delete of an already-removed object with an internal error; that
// case is reported as not found, matching the path-absent contract.
func (b *CMISBackend) Delete(ctx context.Context, blobPath string) error {
	docPath := repoPath(blobPath)

	form := url.Values{
		"cmisaction":  {"delete"},
		"allVersions": {"true"},
	}
	resp, err := b.postForm(ctx, docPath, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	mapped := b.mapStatus(resp)
	// Double delete: the server reports HTTP 500 runtime for an object
	// removed on the server side.
	if resp.StatusCode == http.StatusInternalServerError {
		return interfaces.ErrNotFound
	}
	return mapped
}

// List enumerates document paths under the logical prefix by walking the
// folder tree. Snapshot semantics; repository child ordering.
func (b *CMISBackend) List(ctx context.Context, prefix string) (interfaces.ObjectIterator, error) {
	repoPrefix := repoPath(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(repoPrefix, "/") {
		repoPrefix += "/"
	}

	// Walk from the deepest folder the prefix pins down.
	startDir := repoPrefix
	if !strings.HasSuffix(startDir, "/") {
		startDir, _ = path.Split(startDir)
	}
	startDir = strings.TrimSuffix(startDir, "/")
	if startDir == "" {
		startDir = "/"
	}

	var paths []string
	if err := b.walkFolder(ctx, startDir, repoPrefix, &paths); err != nil {
		return nil, err
	}

	// Report paths in the caller's form: strip the root slash the caller
	// did not write.
	if !strings.HasPrefix(prefix, "/") {
		for i := range paths {
			paths[i] = strings.TrimPrefix(paths[i], "/")
		}
	}
	return newSliceIterator(paths), nil
}

// Stat returns the document's content stream length and MIME type.
func (b *CMISBackend) Stat(ctx context.Context, blobPath string) (interfaces.ObjectInfo, error) {
	obj, err := b.objectByPath(ctx, repoPath(blobPath))
	if err != nil {
		return interfaces.ObjectInfo{}, err
	}

	info := interfaces.ObjectInfo{Path: blobPath}
	if v, ok := obj.Properties["cmis:contentStreamLength"].(float64); ok {
		info.Size = int64(v)
	}
	if v, ok := obj.Properties["cmis:contentStreamMimeType"].(string); ok {
		info.ContentType = v
	}
	return info, nil
}

// Name returns a unique identifier for this storage backend.
func (b *CMISBackend) Name() string {
	return fmt.Sprintf("cmis-%s", b.locationURI)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *CMISBackend) LocationURI() string {
	return b.locationURI
}

// repoPath maps a logical blob path to a repository path with a leading
// slash, as the repository's root-relative addressing requires.
func repoPath(blobPath string) string {
	if strings.HasPrefix(blobPath, "/") {
		return blobPath
	}
	return "/" + blobPath
}

// objectByPath fetches an object's succinct properties.
func (b *CMISBackend) objectByPath(ctx context.Context, docPath string) (*cmisObject, error) {
	resp, err := b.get(ctx, docPath, url.Values{
		"cmisselector": {"object"},
		"succinct":     {"true"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var obj cmisObject
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: decoding object response: %v", interfaces.ErrBackendFault, err)
	}
	return &obj, nil
}

// ensureFolders walks dirPath from the root, creating each missing folder,
// the way the repository expects nested uploads to arrive.
func (b *CMISBackend) ensureFolders(ctx context.Context, dirPath string) error {
	if dirPath == "" || dirPath == "/" {
		return nil
	}

	current := ""
	for _, segment := range strings.Split(strings.TrimPrefix(dirPath, "/"), "/") {
		parent := current
		if parent == "" {
			parent = "/"
		}
		current = current + "/" + segment

		_, err := b.objectByPath(ctx, current)
		if err == nil {
			continue
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return err
		}
		if err := b.createFolder(ctx, parent, segment); err != nil {
			return err
		}
	}
	return nil
}

// createFolder creates a cmis:folder child of parent.
func (b *CMISBackend) createFolder(ctx context.Context, parent, name string) error {
	form := url.Values{
		"cmisaction":       {"createFolder"},
		"propertyId[0]":    {"cmis:objectTypeId"},
		"propertyValue[0]": {"cmis:folder"},
		"propertyId[1]":    {"cmis:name"},
		"propertyValue[1]": {name},
		"succinct":         {"true"},
	}
	resp, err := b.postForm(ctx, parent, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b.mapStatus(resp)
	}
	return nil
}

// createDocument creates a cmis:document child of dir with the given
// content stream.
func (b *CMISBackend) createDocument(ctx context.Context, dir, name string, data []byte, contentType string) error {
	if dir == "" {
		dir = "/"
	}

	fields := [][2]string{
		{"cmisaction", "createDocument"},
		{"propertyId[0]", "cmis:objectTypeId"},
		{"propertyValue[0]", "cmis:document"},
		{"propertyId[1]", "cmis:name"},
		{"propertyValue[1]", name},
		{"succinct", "true"},
	}
	return b.postMultipart(ctx, dir, fields, name, data, contentType)
}

// setContent overwrites an existing document's content stream.
func (b *CMISBackend) setContent(ctx context.Context, docPath string, data []byte, contentType string) error {
	fields := [][2]string{
		{"cmisaction", "setContent"},
		{"overwriteFlag", "true"},
		{"succinct", "true"},
	}
	return b.postMultipart(ctx, docPath, fields, path.Base(docPath), data, contentType)
}

// walkFolder recursively collects document paths under dir that match the
// repository-path prefix.
func (b *CMISBackend) walkFolder(ctx context.Context, dir, repoPrefix string, out *[]string) error {
	resp, err := b.get(ctx, dir, url.Values{
		"cmisselector": {"children"},
		"succinct":     {"true"},
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil
		}
		return err
	}

	var children cmisChildren
	decodeErr := json.NewDecoder(resp.Body).Decode(&children)
	resp.Body.Close()
	if decodeErr != nil {
		return fmt.Errorf("%w: decoding children response: %v", interfaces.ErrBackendFault, decodeErr)
	}

	base := dir
	if base == "/" {
		base = ""
	}
	for _, child := range children.Objects {
		name, _ := child.Object.Properties["cmis:name"].(string)
		baseType, _ := child.Object.Properties["cmis:baseTypeId"].(string)
		childPath := base + "/" + name

		switch baseType {
		case "cmis:folder":
			// Only descend where the prefix can still match.
			if strings.HasPrefix(childPath+"/", repoPrefix) || strings.HasPrefix(repoPrefix, childPath+"/") {
				if err := b.walkFolder(ctx, childPath, repoPrefix, out); err != nil {
					return err
				}
			}
		case "cmis:document":
			if strings.HasPrefix(childPath, repoPrefix) {
				*out = append(*out, childPath)
			}
		}
	}
	return nil
}

// get issues an authenticated GET against the root-relative path.
func (b *CMISBackend) get(ctx context.Context, docPath string, query url.Values) (*http.Response, error) {
	reqURL := b.objectURL(docPath) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
	}
	return b.do(req)
}

// postForm issues an authenticated URL-encoded POST against the
// root-relative path.
func (b *CMISBackend) postForm(ctx context.Context, docPath string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.objectURL(docPath), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.doRaw(req)
}

// postMultipart issues an authenticated multipart POST carrying a content
// stream.
func (b *CMISBackend) postMultipart(ctx context.Context, docPath string, fields [][2]string, filename string, data []byte, contentType string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
		}
	}

	part, err := mw.CreateFormFile("content", filename)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
	}
	if contentType != "" {
		if err := mw.WriteField("contentType", contentType); err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.objectURL(docPath), &body)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendFault, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.doRaw(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b.mapStatus(resp)
	}
	return nil
}

// do sends the request and normalizes non-2xx responses.
func (b *CMISBackend) do(req *http.Request) (*http.Response, error) {
	resp, err := b.doRaw(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, b.mapStatus(resp)
	}
	return resp, nil
}

// doRaw sends the request with authentication, normalizing transport
// faults only.
func (b *CMISBackend) doRaw(req *http.Request) (*http.Response, error) {
	if b.username != "" {
		req.SetBasicAuth(b.username, b.password)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return resp, nil
}

// mapStatus translates a browser-binding error response into the uniform
// taxonomy, consuming the body for the exception name.
func (b *CMISBackend) mapStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var cerr cmisError
	_ = json.Unmarshal(body, &cerr)

	if resp.StatusCode == http.StatusNotFound || cerr.Exception == "objectNotFound" {
		return interfaces.ErrNotFound
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s: %s", interfaces.ErrBackendUnavailable, resp.Status, cerr.Message)
	}
	if cerr.Message != "" {
		return fmt.Errorf("%w: %s: %s", interfaces.ErrBackendFault, cerr.Exception, cerr.Message)
	}
	return fmt.Errorf("%w: %s", interfaces.ErrBackendFault, resp.Status)
}

// objectURL builds the root-relative object URL, escaping each path
// segment.
func (b *CMISBackend) objectURL(docPath string) string {
	segments := strings.Split(strings.TrimPrefix(docPath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	joined := strings.Join(segments, "/")
	if joined == "" {
		return b.rootURL
	}
	return b.rootURL + "/" + joined
}
