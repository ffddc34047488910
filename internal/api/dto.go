package api

import (
	"github.com/starford/echoes/internal/catalog"
	"github.com/starford/echoes/internal/entryservice"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/session"
)

// AddEntryRequest is the request body for adding an entry. Body is display
// text with literal line breaks.
type AddEntryRequest = models.Draft

// EntryDetail is the full entry response type (aliased from the domain layer).
type EntryDetail = entryservice.EntryDetail

// EntryListItem is a lightweight item in a list response (aliased from the domain layer).
type EntryListItem = entryservice.EntryListItem

// AddEntryResponse is returned after a successful commit.
type AddEntryResponse = entryservice.AddResult

// SessionView is the state of a visitor session.
type SessionView = session.Snapshot

// EntryListResponse wraps the catalog listing.
type EntryListResponse struct {
	Entries []EntryListItem `json:"entries" validate:"required"`
	Total   int             `json:"total" example:"3" validate:"required"`
}

// CatalogResponse describes the in-memory catalog.
type CatalogResponse struct {
	Origin   catalog.Origin `json:"origin" example:"remote" validate:"required"`
	Revision uint64         `json:"revision" example:"4"`
	Count    int            `json:"count" example:"3"`
}

// ReloadResponse is returned by a catalog reload.
type ReloadResponse struct {
	CatalogResponse
	Notice string `json:"notice,omitempty"`
}

// ResolveResponse is the route a fragment maps to.
type ResolveResponse struct {
	Fragment string            `json:"fragment" example:"admin"`
	Route    models.RouteState `json:"route" validate:"required"`
}

// CreateSessionRequest opens a session at an optional fragment.
type CreateSessionRequest struct {
	Fragment string `json:"fragment" example:"clockwork-sparrow"`
}

// FragmentRequest sets a session fragment.
type FragmentRequest struct {
	Fragment string `json:"fragment" example:"admin"`
}

// CredentialRequest hands a storage token to a session.
type CredentialRequest struct {
	Token string `json:"token" validate:"required"`
}
