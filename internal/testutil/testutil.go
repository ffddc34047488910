// Package testutil provides a fake repository contents API and published site
// for tests that exercise remote catalog storage.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/starford/echoes/internal/checksum"
	"github.com/starford/echoes/internal/models"
)

// FakeGitHub serves /repos/{owner}/{repo}/contents/{path} with blob-SHA
// optimistic concurrency, and /pages/{path} with the published document.
type FakeGitHub struct {
	Server *httptest.Server
	Owner  string
	Repo   string
	Path   string
	// Token, when non-empty, is required on every PUT.
	Token string

	mu        sync.Mutex
	doc       []byte
	sha       string
	published []byte
	pending   []byte
	lagReads  int
	lag       int
	requests  int
	puts      []PutRecord
}

// PutRecord is one accepted or rejected write.
type PutRecord struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
	Auth    string `json:"-"`
}

// NewFakeGitHub starts a fake API server that is closed on test cleanup.
func NewFakeGitHub(t *testing.T, owner, repo, path string) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{Owner: owner, Repo: repo, Path: path}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the API base URL.
func (f *FakeGitHub) URL() string { return f.Server.URL }

// PagesURL returns the URL of the published document.
func (f *FakeGitHub) PagesURL() string { return f.Server.URL + "/pages/" + f.Path }

// Seed stores entries as the current document, both in the repository and
// on the published site.
func (f *FakeGitHub) Seed(t *testing.T, entries []models.Entry) {
	t.Helper()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc = data
	f.sha = blobSHA(data)
	f.published = data
}

// ExternalUpdate simulates another editor committing entries.
func (f *FakeGitHub) ExternalUpdate(t *testing.T, entries []models.Entry) {
	t.Helper()
	f.Seed(t, entries)
}

// SetPublishLag makes the published site serve the previous document for the
// next n reads after each write.
func (f *FakeGitHub) SetPublishLag(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lagReads = n
}

// SHA returns the current blob SHA ("" when absent).
func (f *FakeGitHub) SHA() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sha
}

// Entries decodes the current repository document.
func (f *FakeGitHub) Entries(t *testing.T) []models.Entry {
	t.Helper()
	f.mu.Lock()
	data := f.doc
	f.mu.Unlock()
	if data == nil {
		return nil
	}
	var out []models.Entry
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode stored document: %v", err)
	}
	return out
}

// RequestCount returns the number of requests served so far.
func (f *FakeGitHub) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// Puts returns every write received.
func (f *FakeGitHub) Puts() []PutRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PutRecord, len(f.puts))
	copy(out, f.puts)
	return out
}

func (f *FakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	contents := "/repos/" + f.Owner + "/" + f.Repo + "/contents/" + f.Path
	switch {
	case r.URL.Path == "/pages/"+f.Path && r.Method == http.MethodGet:
		f.servePages(w)
	case r.URL.Path == contents && r.Method == http.MethodGet:
		f.serveGet(w)
	case r.URL.Path == contents && r.Method == http.MethodPut:
		f.servePut(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}
}

func (f *FakeGitHub) servePages(w http.ResponseWriter) {
	if f.pending != nil {
		if f.lag > 0 {
			f.lag--
		} else {
			f.published = f.pending
			f.pending = nil
		}
	}
	if f.published == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(f.published)
}

func (f *FakeGitHub) serveGet(w http.ResponseWriter) {
	if f.doc == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sha":      f.sha,
		"encoding": "base64",
		"content":  wrap(base64.StdEncoding.EncodeToString(f.doc), 60),
	})
}

func (f *FakeGitHub) servePut(w http.ResponseWriter, r *http.Request) {
	var rec PutRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}
	rec.Auth = r.Header.Get("Authorization")
	f.puts = append(f.puts, rec)

	if f.Token != "" && rec.Auth != "Bearer "+f.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	switch {
	case f.doc != nil && rec.SHA == "":
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `Invalid request. "sha" wasn't supplied.`})
		return
	case f.doc != nil && rec.SHA != f.sha:
		writeJSON(w, http.StatusConflict, map[string]string{"message": f.Path + " does not match " + rec.SHA})
		return
	case f.doc == nil && rec.SHA != "":
		writeJSON(w, http.StatusConflict, map[string]string{"message": f.Path + " does not exist"})
		return
	}

	data, err := base64.StdEncoding.DecodeString(rec.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "content is not valid Base64"})
		return
	}
	status := http.StatusOK
	if f.doc == nil {
		status = http.StatusCreated
	}
	f.doc = data
	f.sha = blobSHA(data)
	if f.lagReads == 0 {
		f.published = data
	} else {
		f.pending = data
		f.lag = f.lagReads
	}
	writeJSON(w, status, map[string]any{
		"content": map[string]string{"sha": f.sha, "path": f.Path},
	})
}

func blobSHA(data []byte) string {
	return checksum.Sum(data)[:40]
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteByte('\n')
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
