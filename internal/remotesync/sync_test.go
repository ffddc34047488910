package remotesync

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/checksum"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/testutil"
)

var sampleEntries = []models.Entry{
	{ID: "a", Title: "A", StoryText: `one\n\ntwo`},
	{ID: "b", Title: "B", StoryText: "three"},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGitHubSyncer(t *testing.T) (*Syncer, *testutil.FakeGitHub) {
	t.Helper()
	fake := testutil.NewFakeGitHub(t, "scribe", "site", "stories.json")
	backend := NewGitHub(NewClient(ClientConfig{}), GitHubConfig{
		APIURL: fake.URL(),
		Owner:  "scribe",
		Repo:   "site",
		Path:   "stories.json",
	})
	return NewSyncer(backend, discardLogger()), fake
}

func TestCommit_EmptyCredentialIssuesNoRequest(t *testing.T) {
	s, fake := newGitHubSyncer(t)
	_, err := s.Commit(context.Background(), sampleEntries, "  ")
	if !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if n := fake.RequestCount(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestCommit_CreatesMissingResource(t *testing.T) {
	s, fake := newGitHubSyncer(t)
	res, err := s.Commit(context.Background(), sampleEntries, "tok")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !res.Created {
		t.Error("expected create path")
	}
	if res.Marker == "" || res.Marker != fake.SHA() {
		t.Errorf("marker = %q, stored sha = %q", res.Marker, fake.SHA())
	}

	puts := fake.Puts()
	if len(puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(puts))
	}
	if puts[0].SHA != "" {
		t.Errorf("create must omit sha, got %q", puts[0].SHA)
	}
	if puts[0].Message != "Create stories.json via catalog admin" {
		t.Errorf("message = %q", puts[0].Message)
	}
	if puts[0].Auth != "Bearer tok" {
		t.Errorf("auth header = %q", puts[0].Auth)
	}

	stored := fake.Entries(t)
	if len(stored) != 2 || stored[0].StoryText != `one\n\ntwo` {
		t.Errorf("stored = %+v", stored)
	}
}

func TestCommit_UpdateCarriesMarker(t *testing.T) {
	s, fake := newGitHubSyncer(t)
	fake.Seed(t, sampleEntries[:1])
	prior := fake.SHA()

	res, err := s.Commit(context.Background(), sampleEntries, "tok")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Created {
		t.Error("expected update path")
	}
	puts := fake.Puts()
	if puts[0].SHA != prior {
		t.Errorf("sha = %q, want %q", puts[0].SHA, prior)
	}
	if puts[0].Message != "Update stories.json via catalog admin" {
		t.Errorf("message = %q", puts[0].Message)
	}
	if got := len(fake.Entries(t)); got != 2 {
		t.Errorf("stored entries = %d, want 2", got)
	}
}

// racingBackend lets another writer commit between the read and the write.
type racingBackend struct {
	Backend
	beforeWrite func()
}

func (r *racingBackend) Write(ctx context.Context, cred Credential, req WriteRequest) (string, error) {
	r.beforeWrite()
	return r.Backend.Write(ctx, cred, req)
}

func TestCommit_StaleMarkerIsConflict(t *testing.T) {
	s, fake := newGitHubSyncer(t)
	fake.Seed(t, sampleEntries[:1])
	readMarker := fake.SHA()

	s.backend = &racingBackend{Backend: s.backend, beforeWrite: func() {
		fake.ExternalUpdate(t, []models.Entry{{ID: "other", Title: "Other", StoryText: "x"}})
	}}

	_, err := s.Commit(context.Background(), sampleEntries, "tok")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if errors.Is(err, apperr.ErrTransport) {
		t.Error("conflict must not be reported as a transport error")
	}
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) || ce.Marker != readMarker {
		t.Errorf("conflict marker = %+v, want %q", ce, readMarker)
	}
	if got := fake.Entries(t); len(got) != 1 || got[0].ID != "other" {
		t.Errorf("concurrent write was overwritten: %+v", got)
	}
}

func TestCommit_ConcurrentCreateIsConflict(t *testing.T) {
	s, fake := newGitHubSyncer(t)
	s.backend = &racingBackend{Backend: s.backend, beforeWrite: func() {
		fake.ExternalUpdate(t, []models.Entry{{ID: "first", Title: "First", StoryText: "x"}})
	}}
	_, err := s.Commit(context.Background(), sampleEntries, "tok")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestCommit_RejectedCredentialIsTransportError(t *testing.T) {
	s, fake := newGitHubSyncer(t)
	fake.Token = "right"
	_, err := s.Commit(context.Background(), sampleEntries, "wrong")
	var te *apperr.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.Status != http.StatusUnauthorized || te.Message != "Bad credentials" {
		t.Errorf("transport error = %+v", te)
	}
	if errors.Is(err, apperr.ErrConflict) {
		t.Error("auth failure must not be a conflict")
	}
}

func TestCommit_ReadFailureSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	backend := NewGitHub(NewClient(ClientConfig{}), GitHubConfig{APIURL: srv.URL, Owner: "o", Repo: "r", Path: "stories.json"})
	_, err := NewSyncer(backend, discardLogger()).Commit(context.Background(), sampleEntries, "tok")
	var te *apperr.TransportError
	if !errors.As(err, &te) || te.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want 500 TransportError", err)
	}
}

func TestGitHubFetch(t *testing.T) {
	s, fake := newGitHubSyncer(t)
	if _, err := s.Backend().Fetch(context.Background()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("absent resource err = %v, want ErrNotFound", err)
	}

	fake.Seed(t, sampleEntries)
	got, err := s.Backend().Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 || got[1].ID != "b" {
		t.Errorf("entries = %+v", got)
	}
}

func TestGitHubBranchIsSent(t *testing.T) {
	var mu sync.Mutex
	var gotRef, gotBranch string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodGet {
			gotRef = r.URL.Query().Get("ref")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body contentsPut
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotBranch = body.Branch
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"content":{"sha":"new"}}`))
	}))
	defer srv.Close()

	backend := NewGitHub(NewClient(ClientConfig{}), GitHubConfig{APIURL: srv.URL, Owner: "o", Repo: "r", Path: "/data/stories.json", Branch: "gh-pages"})
	res, err := NewSyncer(backend, discardLogger()).Commit(context.Background(), sampleEntries, "tok")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotRef != "gh-pages" || gotBranch != "gh-pages" {
		t.Errorf("ref = %q, branch = %q", gotRef, gotBranch)
	}
	if res.Marker != "new" {
		t.Errorf("marker = %q", res.Marker)
	}
	if backend.Resource() != "data/stories.json" {
		t.Errorf("resource = %q", backend.Resource())
	}
}

// etaglessStore is a key/value resource without ETags: the client falls back
// to content hashes as markers.
type etaglessStore struct {
	mu  sync.Mutex
	doc []byte
}

func (s *etaglessStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		if s.doc == nil {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(s.doc)
	case http.MethodPut:
		if s.doc == nil && r.Header.Get("If-None-Match") != "*" {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		if s.doc != nil && !checksum.Matches(r.Header.Get("If-Match"), s.doc) {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		var body contentsPut
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		doc, err := base64.StdEncoding.DecodeString(body.Content)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.doc = doc
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestHTTPStore_ContentHashMarkers(t *testing.T) {
	store := &etaglessStore{}
	srv := httptest.NewServer(store)
	defer srv.Close()

	backend, err := NewHTTPStore(NewClient(ClientConfig{}), srv.URL+"/catalog/stories.json")
	if err != nil {
		t.Fatal(err)
	}
	s := NewSyncer(backend, discardLogger())

	res, err := s.Commit(context.Background(), sampleEntries[:1], "tok")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Created {
		t.Error("expected create path")
	}
	doc, _ := EncodeDocument(sampleEntries[:1])
	if res.Marker != checksum.Marker(doc) {
		t.Errorf("marker = %q, want content hash", res.Marker)
	}

	if _, err := s.Commit(context.Background(), sampleEntries, "tok"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := backend.Fetch(context.Background())
	if err != nil || len(got) != 2 {
		t.Fatalf("Fetch = %+v, %v", got, err)
	}
	if backend.Resource() != "stories.json" {
		t.Errorf("resource = %q", backend.Resource())
	}
}

func TestHTTPStore_StaleMarkerIsConflict(t *testing.T) {
	store := &etaglessStore{doc: []byte(`[]`)}
	srv := httptest.NewServer(store)
	defer srv.Close()

	backend, _ := NewHTTPStore(NewClient(ClientConfig{}), srv.URL+"/stories.json")
	s := NewSyncer(&racingBackend{Backend: backend, beforeWrite: func() {
		store.mu.Lock()
		store.doc = []byte(`[{"id":"x"}]`)
		store.mu.Unlock()
	}}, discardLogger())

	_, err := s.Commit(context.Background(), sampleEntries, "tok")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestNewHTTPStore_RejectsNonHTTP(t *testing.T) {
	if _, err := NewHTTPStore(NewClient(ClientConfig{}), "file:///tmp/stories.json"); err == nil {
		t.Error("expected error for non-http url")
	}
}

func TestDecodeDocument(t *testing.T) {
	entries, err := DecodeDocument([]byte(`[{"id":"a","title":"A","storyText":"one\n\ntwo"}]`))
	if err != nil {
		t.Fatalf("DecodeDocument: %v", err)
	}
	if entries[0].StoryText != `one\n\ntwo` {
		t.Errorf("story text not normalized: %q", entries[0].StoryText)
	}

	if _, err := DecodeDocument([]byte(`{"not":"an array"}`)); !errors.Is(err, apperr.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestEncodeDocument_NilIsEmptyArray(t *testing.T) {
	data, err := EncodeDocument(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("document = %s", data)
	}
}

func TestEncodeDocument_Shape(t *testing.T) {
	data, err := EncodeDocument([]models.Entry{{ID: "a", Title: "Salt & Ash", StoryText: "<b>bold</b> & more"}})
	if err != nil {
		t.Fatal(err)
	}
	doc := string(data)
	if !strings.Contains(doc, `"storyText": "<b>bold</b> & more"`) || !strings.Contains(doc, `"title": "Salt & Ash"`) {
		t.Errorf("markup escaped: %s", doc)
	}
	if !strings.Contains(doc, `"foreword": ""`) {
		t.Errorf("empty foreword dropped: %s", doc)
	}
	if strings.HasSuffix(doc, "\n") || !strings.HasPrefix(doc, "[\n  {\n    \"id\": \"a\"") {
		t.Errorf("unexpected layout: %q", doc)
	}
}

func TestCredentialIsRedacted(t *testing.T) {
	cred := Credential("ghp_supersecret")
	if fmt.Sprint(cred) != "[redacted]" {
		t.Errorf("Sprint = %q", fmt.Sprint(cred))
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("commit", slog.Any("credential", cred))
	if strings.Contains(buf.String(), "supersecret") {
		t.Errorf("credential leaked into log: %s", buf.String())
	}
	if Credential("").String() != "" {
		t.Error("empty credential should format as empty")
	}
}
