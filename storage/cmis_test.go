package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/siilo/siilo/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCMIS is an in-memory CMIS 1.1 browser-binding server covering the
// selectors and actions the adapter speaks: object, content and children
// reads, createFolder, createDocument, setContent and delete writes. Error
// bodies follow the binding's JSON shape, including the HTTP 500 a real
// repository answers when deleting an object that is already gone.
type fakeCMIS struct {
	mu      sync.Mutex
	docs    map[string]fakeCMISDoc
	folders map[string]bool
}

type fakeCMISDoc struct {
	data        []byte
	contentType string
}

func newFakeCMIS() *fakeCMIS {
	return &fakeCMIS{
		docs:    make(map[string]fakeCMISDoc),
		folders: make(map[string]bool),
	}
}

const fakeCMISBase = "/browser/root"

func (f *fakeCMIS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objPath := strings.TrimPrefix(r.URL.Path, fakeCMISBase)
	if objPath == "" {
		objPath = "/"
	}

	switch r.Method {
	case http.MethodGet:
		f.handleGet(w, r, objPath)
	case http.MethodPost:
		f.handlePost(w, r, objPath)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *fakeCMIS) handleGet(w http.ResponseWriter, r *http.Request, objPath string) {
	switch r.URL.Query().Get("cmisselector") {
	case "content":
		doc, ok := f.docs[objPath]
		if !ok {
			f.writeError(w, http.StatusNotFound, "objectNotFound", objPath)
			return
		}
		if doc.contentType != "" {
			w.Header().Set("Content-Type", doc.contentType)
		}
		w.Write(doc.data)

	case "object":
		if doc, ok := f.docs[objPath]; ok {
			f.writeJSON(w, http.StatusOK, map[string]any{
				"succinctProperties": f.docProperties(objPath, doc),
			})
			return
		}
		if objPath == "/" || f.folders[objPath] {
			f.writeJSON(w, http.StatusOK, map[string]any{
				"succinctProperties": f.folderProperties(objPath),
			})
			return
		}
		f.writeError(w, http.StatusNotFound, "objectNotFound", objPath)

	case "children":
		if objPath != "/" && !f.folders[objPath] {
			f.writeError(w, http.StatusNotFound, "objectNotFound", objPath)
			return
		}
		var objects []map[string]any
		for p, doc := range f.docs {
			if path.Dir(p) == objPath {
				objects = append(objects, map[string]any{"object": map[string]any{
					"succinctProperties": f.docProperties(p, doc),
				}})
			}
		}
		for p := range f.folders {
			if path.Dir(p) == objPath {
				objects = append(objects, map[string]any{"object": map[string]any{
					"succinctProperties": f.folderProperties(p),
				}})
			}
		}
		f.writeJSON(w, http.StatusOK, map[string]any{"objects": objects})

	default:
		f.writeError(w, http.StatusBadRequest, "invalidArgument", "unknown selector")
	}
}

func (f *fakeCMIS) handlePost(w http.ResponseWriter, r *http.Request, objPath string) {
	switch r.FormValue("cmisaction") {
	case "delete":
		if _, ok := f.docs[objPath]; !ok {
			// Real repositories raise a runtime exception here.
			f.writeError(w, http.StatusInternalServerError, "runtime", "object no longer exists")
			return
		}
		delete(f.docs, objPath)
		w.WriteHeader(http.StatusOK)

	case "createFolder":
		if objPath != "/" && !f.folders[objPath] {
			f.writeError(w, http.StatusNotFound, "objectNotFound", objPath)
			return
		}
		name := f.nameProperty(r)
		f.folders[path.Join(objPath, name)] = true
		w.WriteHeader(http.StatusCreated)

	case "createDocument":
		if objPath != "/" && !f.folders[objPath] {
			f.writeError(w, http.StatusNotFound, "objectNotFound", objPath)
			return
		}
		file, _, err := r.FormFile("content")
		if err != nil {
			f.writeError(w, http.StatusBadRequest, "invalidArgument", "missing content stream")
			return
		}
		data, _ := io.ReadAll(file)
		file.Close()
		f.docs[path.Join(objPath, f.nameProperty(r))] = fakeCMISDoc{
			data:        data,
			contentType: r.FormValue("contentType"),
		}
		w.WriteHeader(http.StatusCreated)

	case "setContent":
		if _, ok := f.docs[objPath]; !ok {
			f.writeError(w, http.StatusNotFound, "objectNotFound", objPath)
			return
		}
		file, _, err := r.FormFile("content")
		if err != nil {
			f.writeError(w, http.StatusBadRequest, "invalidArgument", "missing content stream")
			return
		}
		data, _ := io.ReadAll(file)
		file.Close()
		f.docs[objPath] = fakeCMISDoc{data: data, contentType: r.FormValue("contentType")}
		w.WriteHeader(http.StatusOK)

	default:
		f.writeError(w, http.StatusBadRequest, "notSupported", "unknown action")
	}
}

func (f *fakeCMIS) docProperties(p string, doc fakeCMISDoc) map[string]any {
	return map[string]any{
		"cmis:name":                  path.Base(p),
		"cmis:baseTypeId":            "cmis:document",
		"cmis:contentStreamLength":   len(doc.data),
		"cmis:contentStreamMimeType": doc.contentType,
	}
}

func (f *fakeCMIS) folderProperties(p string) map[string]any {
	return map[string]any{
		"cmis:name":       path.Base(p),
		"cmis:baseTypeId": "cmis:folder",
	}
}

// nameProperty finds the cmis:name value in the indexed property arrays.
func (f *fakeCMIS) nameProperty(r *http.Request) string {
	for i := 0; ; i++ {
		id := r.FormValue(fmt.Sprintf("propertyId[%d]", i))
		if id == "" {
			return ""
		}
		if id == "cmis:name" {
			return r.FormValue(fmt.Sprintf("propertyValue[%d]", i))
		}
	}
}

func (f *fakeCMIS) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (f *fakeCMIS) writeError(w http.ResponseWriter, status int, exception, message string) {
	f.writeJSON(w, status, map[string]string{"exception": exception, "message": message})
}

func newTestCMISBackend(t *testing.T) (*CMISBackend, *fakeCMIS) {
	t.Helper()
	fake := newFakeCMIS()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := NewCMISBackend(server.URL+fakeCMISBase, "admin", "admin", logger)
	require.NoError(t, err)
	return backend, fake
}

func TestCMISBackendConformance(t *testing.T) {
	runBackendConformance(t, func(t *testing.T) interfaces.Backend {
		backend, _ := newTestCMISBackend(t)
		return backend
	})
}

func TestCMISPutCreatesIntermediateFolders(t *testing.T) {
	ctx := context.Background()
	backend, fake := newTestCMISBackend(t)

	require.NoError(t, backend.Put(ctx, "a/b/c/doc.txt", []byte("deep"), "text/plain"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.folders["/a"])
	assert.True(t, fake.folders["/a/b"])
	assert.True(t, fake.folders["/a/b/c"])
	assert.Contains(t, fake.docs, "/a/b/c/doc.txt")
}

func TestCMISStatReportsContentType(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestCMISBackend(t)

	require.NoError(t, backend.Put(ctx, "report.pdf", []byte("%PDF-1.7"), "application/pdf"))

	info, err := backend.Stat(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)
}

func TestCMISAuthFailureIsUnavailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := NewCMISBackend(server.URL+fakeCMISBase, "admin", "wrong", logger)
	require.NoError(t, err)

	_, err = backend.Get(context.Background(), "doc.txt")
	assert.True(t, errors.Is(err, interfaces.ErrBackendUnavailable), "got %v", err)
}

func TestCMISUnreachableServerIsUnavailability(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := NewCMISBackend("http://127.0.0.1:1/browser/root", "", "", logger)
	require.NoError(t, err)

	_, err = backend.Get(context.Background(), "doc.txt")
	assert.True(t, errors.Is(err, interfaces.ErrBackendUnavailable), "got %v", err)
}

func TestCMISInvalidRootURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewCMISBackend("not a url", "", "", logger)
	assert.Error(t, err)
}
