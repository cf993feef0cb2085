package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/siilo/siilo/interfaces"
	"github.com/siilo/siilo/store"
)

// DefaultMaxBlobSize caps PUT bodies. Large payloads belong on a streaming
// channel, not the JSON gateway.
const DefaultMaxBlobSize = 64 << 20

// Handler serves the blob API over a store facade.
type Handler struct {
	store       *store.Store
	log         *slog.Logger
	maxBlobSize int64
}

// NewHandler creates the blob API handler.
func NewHandler(st *store.Store, log *slog.Logger) *Handler {
	return &Handler{
		store:       st,
		log:         log,
		maxBlobSize: DefaultMaxBlobSize,
	}
}

// HandleGetBlob serves GET /api/v1/blob?locator=scheme://path.
func (h *Handler) HandleGetBlob(w http.ResponseWriter, r *http.Request) {
	locator := r.URL.Query().Get("locator")
	if locator == "" {
		h.writeError(w, fmt.Errorf("%w: missing locator parameter", interfaces.ErrMalformedLocator))
		return
	}

	info, err := h.store.Stat(r.Context(), locator)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := h.store.Read(r.Context(), locator)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandlePutBlob serves PUT /api/v1/blob?locator=scheme://path with the blob
// content as the request body.
func (h *Handler) HandlePutBlob(w http.ResponseWriter, r *http.Request) {
	locator := r.URL.Query().Get("locator")
	if locator == "" {
		h.writeError(w, fmt.Errorf("%w: missing locator parameter", interfaces.ErrMalformedLocator))
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBlobSize)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge,
				map[string]string{"error": fmt.Sprintf("blob exceeds %d bytes", tooLarge.Limit)})
			return
		}
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	if err := h.store.WriteTyped(r.Context(), locator, data, r.Header.Get("Content-Type")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteBlob serves DELETE /api/v1/blob?locator=scheme://path.
func (h *Handler) HandleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	locator := r.URL.Query().Get("locator")
	if locator == "" {
		h.writeError(w, fmt.Errorf("%w: missing locator parameter", interfaces.ErrMalformedLocator))
		return
	}

	if err := h.store.Remove(r.Context(), locator); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHeadBlob serves HEAD /api/v1/blob?locator=scheme://path with the
// blob's size and content type as headers.
func (h *Handler) HandleHeadBlob(w http.ResponseWriter, r *http.Request) {
	locator := r.URL.Query().Get("locator")
	if locator == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	info, err := h.store.Stat(r.Context(), locator)
	if err != nil {
		// HEAD responses carry no body.
		w.WriteHeader(statusFromError(err))
		return
	}

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// HandleListBlobs serves GET /api/v1/blobs?prefix=scheme://path-prefix,
// responding with a JSON array of locators.
func (h *Handler) HandleListBlobs(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		h.writeError(w, fmt.Errorf("%w: missing prefix parameter", interfaces.ErrMalformedLocator))
		return
	}

	it, err := h.store.List(r.Context(), prefix)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer it.Close()

	locators := []string{}
	for {
		locator, err := it.Next(r.Context())
		if err == io.EOF {
			break
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		locators = append(locators, locator)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"locators": locators})
}

// HandleSchemes serves GET /api/v1/schemes.
func (h *Handler) HandleSchemes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"schemes": h.store.Schemes()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeError maps a store error onto an HTTP status and a JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	if status >= 500 {
		h.log.Error("Request failed", "err", err, slog.Int("status", status))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFromError translates the uniform error taxonomy into HTTP statuses.
// Unavailability is 503 so load balancers retry elsewhere; backend faults
// are 502 because the gateway itself is healthy.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrMalformedLocator), errors.Is(err, interfaces.ErrUnknownScheme):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
