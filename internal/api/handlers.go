package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/echoes/internal/draftfile"
	"github.com/starford/echoes/internal/entryservice"
	"github.com/starford/echoes/internal/remotesync"
	"github.com/starford/echoes/internal/router"
	"github.com/starford/echoes/internal/session"
	"github.com/starford/echoes/internal/sse"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc      *entryservice.Service
	sessions *session.Manager
	broker   *sse.Broker
}

// NewHandler creates a new Handler.
func NewHandler(svc *entryservice.Service, sessions *session.Manager, broker *sse.Broker) *Handler {
	return &Handler{svc: svc, sessions: sessions, broker: broker}
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// decodeDraft reads a JSON draft, or a Markdown document with frontmatter
// when the request is sent as text/markdown.
func decodeDraft(w http.ResponseWriter, r *http.Request, draft *AddEntryRequest) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "text/markdown") {
		return decode(w, r, draft)
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unreadable body"))
		return false
	}
	d, err := draftfile.Parse(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	*draft = d
	return true
}

func (h *Handler) catalogState() CatalogResponse {
	store := h.svc.Store()
	entries, rev := store.Snapshot()
	return CatalogResponse{Origin: store.Origin(), Revision: rev, Count: len(entries)}
}

// ListEntries handles GET /api/entries.
//
//	@Summary		List catalog entries in display order
//	@Tags			entries
//	@Produce		json
//	@Success		200		{object}	EntryListResponse
//	@Router			/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	items := h.svc.ListEntries(r.Context())
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: items, Total: len(items)})
}

// GetEntry handles GET /api/entries/{id}.
//
//	@Summary		Get a single entry with rendered body
//	@Tags			entries
//	@Produce		json
//	@Param			id	path		string	true	"Entry id"
//	@Success		200	{object}	EntryDetail
//	@Failure		404	{object}	errResponse
//	@Router			/entries/{id} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// AddEntry handles POST /api/entries.
//
//	@Summary		Append an entry and commit the catalog
//	@Tags			entries
//	@Accept			json,text/markdown
//	@Produce		json
//	@Param			body	body		AddEntryRequest	true	"Entry draft"
//	@Success		201		{object}	AddEntryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries [post]
func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	var req AddEntryRequest
	if !decodeDraft(w, r, &req) {
		return
	}
	res, err := h.svc.AddEntry(r.Context(), req, credentialFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Catalog handles GET /api/catalog.
//
//	@Summary		Describe the in-memory catalog
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	CatalogResponse
//	@Router			/catalog [get]
func (h *Handler) Catalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.catalogState())
}

// ReloadCatalog handles POST /api/catalog/reload.
//
//	@Summary		Reload the catalog from its source
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	ReloadResponse
//	@Failure		502	{object}	errResponse
//	@Router			/catalog/reload [post]
func (h *Handler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReloadResponse{CatalogResponse: h.catalogState(), Notice: res.Notice})
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Map a URL fragment to a view without a session
//	@Tags			routing
//	@Produce		json
//	@Param			fragment	query		string	false	"URL fragment"
//	@Success		200			{object}	ResolveResponse
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	fragment := router.Normalize(r.URL.Query().Get("fragment"))
	writeJSON(w, http.StatusOK, ResolveResponse{
		Fragment: fragment,
		Route:    router.Resolve(fragment, h.svc.Store()),
	})
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Open a visitor session
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSessionRequest	false	"Initial fragment"
//	@Success		201		{object}	SessionView
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	s := h.sessions.Create(req.Fragment)
	view, err := s.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+s.ID())
	writeJSON(w, http.StatusCreated, view)
}

// GetSession handles GET /api/sessions/{sid}.
//
//	@Summary		Current view of a session
//	@Tags			sessions
//	@Produce		json
//	@Param			sid	path		string	true	"Session id"
//	@Success		200	{object}	SessionView
//	@Failure		404	{object}	errResponse
//	@Router			/sessions/{sid} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, func(ctx context.Context, s *session.Session) (session.Snapshot, error) {
		return s.View(ctx)
	})
}

// CloseSession handles DELETE /api/sessions/{sid}.
//
//	@Summary		Close a session
//	@Tags			sessions
//	@Param			sid	path	string	true	"Session id"
//	@Success		204	"Session closed"
//	@Failure		404	{object}	errResponse
//	@Router			/sessions/{sid} [delete]
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sid")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetFragment handles PUT /api/sessions/{sid}/fragment.
//
//	@Summary		Write the session fragment
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sid		path		string			true	"Session id"
//	@Param			body	body		FragmentRequest	true	"New fragment"
//	@Success		200		{object}	SessionView
//	@Router			/sessions/{sid}/fragment [put]
func (h *Handler) SetFragment(w http.ResponseWriter, r *http.Request) {
	var req FragmentRequest
	if !decode(w, r, &req) {
		return
	}
	h.respondView(w, r, func(ctx context.Context, s *session.Session) (session.Snapshot, error) {
		return s.Navigate(ctx, req.Fragment)
	})
}

// GoHome handles POST /api/sessions/{sid}/home.
func (h *Handler) GoHome(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, func(ctx context.Context, s *session.Session) (session.Snapshot, error) {
		return s.GoHome(ctx)
	})
}

// ToggleAdmin handles POST /api/sessions/{sid}/admin/toggle.
func (h *Handler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, func(ctx context.Context, s *session.Session) (session.Snapshot, error) {
		return s.ToggleAdmin(ctx)
	})
}

// OpenEntry handles POST /api/sessions/{sid}/entries/{id}/open.
func (h *Handler) OpenEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.respondView(w, r, func(ctx context.Context, s *session.Session) (session.Snapshot, error) {
		return s.GoToEntry(ctx, id)
	})
}

// SetCredential handles PUT /api/sessions/{sid}/credential.
//
//	@Summary		Hold a storage token in the session
//	@Tags			sessions
//	@Accept			json
//	@Param			sid		path	string				true	"Session id"
//	@Param			body	body	CredentialRequest	true	"Token"
//	@Success		204		"Token held"
//	@Failure		400		{object}	errResponse
//	@Router			/sessions/{sid}/credential [put]
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if !decode(w, r, &req) {
		return
	}
	cred := remotesync.Credential(req.Token)
	if cred.Empty() {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "token is required", Code: codeValidation, Field: "token"})
		return
	}
	if err := sessionFrom(r.Context()).SetCredential(r.Context(), cred); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCredential handles DELETE /api/sessions/{sid}/credential.
func (h *Handler) ClearCredential(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r.Context()).ClearCredential(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionAddEntry handles POST /api/sessions/{sid}/entries.
//
//	@Summary		Append an entry with the session's token
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sid		path		string			true	"Session id"
//	@Param			body	body		AddEntryRequest	true	"Entry draft"
//	@Success		201		{object}	AddEntryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/sessions/{sid}/entries [post]
func (h *Handler) SessionAddEntry(w http.ResponseWriter, r *http.Request) {
	var req AddEntryRequest
	if !decodeDraft(w, r, &req) {
		return
	}
	res, err := sessionFrom(r.Context()).AddEntry(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// SessionEvents handles GET /api/sessions/{sid}/events. The stream ends when
// the session is closed.
func (h *Handler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	h.broker.ServeTopic(w, r.WithContext(ctx), s.ID())
}

func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, fn func(context.Context, *session.Session) (session.Snapshot, error)) {
	s := sessionFrom(r.Context())
	view, err := fn(r.Context(), s)
	if err != nil {
		slog.Debug("session action failed",
			slog.String("session_id", s.ID()),
			slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
