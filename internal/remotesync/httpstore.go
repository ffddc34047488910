package remotesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/checksum"
	"github.com/starford/echoes/internal/models"
)

// HTTPStore is a generic key/value resource: GET returns the document, PUT
// accepts the commit envelope guarded by If-Match. When the server sends no
// ETag the SHA-256 of the last-read payload stands in as the marker.
type HTTPStore struct {
	client *Client
	url    *url.URL
}

var _ Backend = (*HTTPStore)(nil)

// NewHTTPStore creates a backend for the resource at rawURL.
func NewHTTPStore(client *Client, rawURL string) (*HTTPStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("remotesync: parse store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remotesync: store url must be http(s): %s", rawURL)
	}
	return &HTTPStore{client: client, url: u}, nil
}

// Resource returns the last path segment of the store URL.
func (h *HTTPStore) Resource() string {
	return path.Base(h.url.Path)
}

func (h *HTTPStore) read(ctx context.Context, cred Credential) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("remotesync: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if !cred.Empty() {
		cred.authorize(req)
	}
	return h.client.Do(ctx, req)
}

func markerOf(resp *Response, doc []byte) string {
	if etag := resp.Header.Get("ETag"); etag != "" {
		return etag
	}
	return checksum.Marker(doc)
}

// ReadMarker returns the ETag (or content hash) of the current document.
func (h *HTTPStore) ReadMarker(ctx context.Context, cred Credential) (string, error) {
	resp, err := h.read(ctx, cred)
	if err != nil {
		return "", err
	}
	switch resp.Status {
	case http.StatusOK:
		return markerOf(resp, resp.Body), nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", transportError(resp, h.url)
	}
}

// Write replaces the document if the marker still matches.
func (h *HTTPStore) Write(ctx context.Context, cred Credential, wr WriteRequest) (string, error) {
	payload, err := json.Marshal(contentsPut{
		Message: wr.Message,
		Content: wr.Content,
		SHA:     wr.Marker,
	})
	if err != nil {
		return "", fmt.Errorf("remotesync: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.url.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("remotesync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if wr.Marker == "" {
		req.Header.Set("If-None-Match", "*")
	} else {
		req.Header.Set("If-Match", wr.Marker)
	}
	cred.authorize(req)

	resp, err := h.client.Do(ctx, req)
	if err != nil {
		return "", err
	}
	switch resp.Status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return markerOf(resp, wr.Document), nil
	case http.StatusConflict, http.StatusPreconditionFailed:
		return "", &apperr.ConflictError{Marker: wr.Marker}
	default:
		return "", transportError(resp, h.url)
	}
}

// Fetch reads and decodes the document.
func (h *HTTPStore) Fetch(ctx context.Context) ([]models.Entry, error) {
	resp, err := h.read(ctx, "")
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case http.StatusOK:
		return DecodeDocument(resp.Body)
	case http.StatusNotFound:
		return nil, apperr.ErrNotFound
	default:
		return nil, transportError(resp, h.url)
	}
}
