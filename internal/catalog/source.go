package catalog

import (
	"context"
	"fmt"
	"net/http"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/remotesync"
)

// Source fetches the published catalog. A missing resource is reported as
// apperr.ErrNotFound.
type Source interface {
	Fetch(ctx context.Context) ([]models.Entry, error)
}

// HTTPSource reads the catalog document from a public URL, typically the
// static site the storage repository publishes to.
type HTTPSource struct {
	client *remotesync.Client
	url    string
}

// NewHTTPSource creates a Source for url.
func NewHTTPSource(client *remotesync.Client, url string) *HTTPSource {
	return &HTTPSource{client: client, url: url}
}

// Fetch GETs and decodes the document.
func (s *HTTPSource) Fetch(ctx context.Context) ([]models.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case http.StatusOK:
		return remotesync.DecodeDocument(resp.Body)
	case http.StatusNotFound:
		return nil, apperr.ErrNotFound
	default:
		return nil, &apperr.TransportError{
			Status:  resp.Status,
			Message: http.StatusText(resp.Status),
			URL:     req.URL.Redacted(),
		}
	}
}
