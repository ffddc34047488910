// Package remotesync persists the catalog to an external version-controlled
// store using a read-marker / conditional-write protocol.
package remotesync

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/models"
)

// WriteRequest is the payload of a conditional write.
type WriteRequest struct {
	Message string
	// Content is the base64-encoded catalog document.
	Content string
	// Marker is the version marker read before writing; empty on create.
	Marker string
	// Document is the raw document, kept for stores that derive markers
	// from content.
	Document []byte
}

// Backend is a version-controlled storage API holding one catalog resource.
type Backend interface {
	// Resource names the stored document (used in commit messages).
	Resource() string
	// ReadMarker returns the current version marker, or "" when the
	// resource does not exist yet.
	ReadMarker(ctx context.Context, cred Credential) (string, error)
	// Write stores the document if Marker is still current and returns the
	// new marker.
	Write(ctx context.Context, cred Credential, req WriteRequest) (string, error)
	// Fetch reads and decodes the catalog without a credential.
	Fetch(ctx context.Context) ([]models.Entry, error)
}

// Result describes a successful commit.
type Result struct {
	Marker  string
	Created bool
}

// Syncer runs the commit protocol against a Backend. It never retries.
type Syncer struct {
	backend Backend
	logger  *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(backend Backend, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{backend: backend, logger: logger}
}

// Backend returns the underlying backend.
func (s *Syncer) Backend() Backend {
	return s.backend
}

// Commit replaces the remote catalog with entries.
//
// Errors: apperr.ErrAuthRequired (no request issued), *apperr.ConflictError
// when the marker went stale between read and write, *apperr.TransportError
// for any other failure.
func (s *Syncer) Commit(ctx context.Context, entries []models.Entry, cred Credential) (*Result, error) {
	if cred.Empty() {
		return nil, apperr.ErrAuthRequired
	}

	marker, err := s.backend.ReadMarker(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("remotesync: read marker: %w", err)
	}

	doc, err := EncodeDocument(entries)
	if err != nil {
		return nil, err
	}

	created := marker == ""
	req := WriteRequest{
		Message:  commitMessage(s.backend.Resource(), created),
		Content:  base64.StdEncoding.EncodeToString(doc),
		Marker:   marker,
		Document: doc,
	}

	newMarker, err := s.backend.Write(ctx, cred, req)
	if err != nil {
		s.logger.Warn("remotesync: write rejected",
			slog.String("resource", s.backend.Resource()),
			slog.Bool("create", created),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("remotesync: write: %w", err)
	}

	s.logger.Info("remotesync: catalog committed",
		slog.String("resource", s.backend.Resource()),
		slog.Int("entries", len(entries)),
		slog.Bool("create", created),
		slog.Any("credential", cred))

	return &Result{Marker: newMarker, Created: created}, nil
}

func commitMessage(resource string, created bool) string {
	if created {
		return fmt.Sprintf("Create %s via catalog admin", resource)
	}
	return fmt.Sprintf("Update %s via catalog admin", resource)
}
