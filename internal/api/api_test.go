package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/echoes/internal/catalog"
	"github.com/starford/echoes/internal/entryservice"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/remotesync"
	"github.com/starford/echoes/internal/session"
	"github.com/starford/echoes/internal/sse"
	"github.com/starford/echoes/internal/testutil"
)

var seedEntries = []models.Entry{
	{ID: "clockwork-sparrow", Title: "The Clockwork Sparrow", Subtitle: "tick", StoryText: `One\n\nTwo **bold**`},
	{ID: "neon-rain-ancient-streets", Title: "Neon Rain", Subtitle: "rain", StoryText: "wet"},
}

type testEnv struct {
	router   http.Handler
	svc      *entryservice.Service
	sessions *session.Manager
	broker   *sse.Broker
	fake     *testutil.FakeGitHub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := testutil.NewFakeGitHub(t, "scribe", "site", "stories.json")
	fake.Seed(t, seedEntries)

	client := remotesync.NewClient(remotesync.ClientConfig{})
	backend := remotesync.NewGitHub(client, remotesync.GitHubConfig{
		APIURL: fake.URL(), Owner: "scribe", Repo: "site", Path: "stories.json",
	})
	published := catalog.NewHTTPSource(client, fake.PagesURL())
	store := catalog.NewStore(published, catalog.DefaultFallback(), logger)
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc := entryservice.NewService(store, remotesync.NewSyncer(backend, logger), published,
		entryservice.Config{PollInterval: 10 * time.Millisecond, PollTimeout: time.Second}, logger)

	broker := sse.NewBroker(50 * time.Millisecond)
	t.Cleanup(broker.Close)
	sessions := session.NewManager(svc, broker, time.Minute, logger)
	t.Cleanup(sessions.CloseAll)

	return &testEnv{
		router:   NewRouter(svc, sessions, broker),
		svc:      svc,
		sessions: sessions,
		broker:   broker,
		fake:     fake,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestListEntries(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/entries", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeBody[EntryListResponse](t, w)
	if resp.Total != 2 || resp.Entries[0].ID != "clockwork-sparrow" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Entries[0].Excerpt != "One Two bold" {
		t.Errorf("excerpt = %q", resp.Entries[0].Excerpt)
	}
}

func TestGetEntry(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/entries/clockwork-sparrow", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	entry := decodeBody[EntryDetail](t, w)
	if entry.Display != "One\n\nTwo <b>bold</b>" {
		t.Errorf("display = %q", entry.Display)
	}
	if entry.StoryText != `One\n\nTwo **bold**` {
		t.Errorf("storyText = %q", entry.StoryText)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/entries/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAddEntry_RequiresBearer(t *testing.T) {
	env := newTestEnv(t)
	before := env.fake.RequestCount()
	w := env.do(t, http.MethodPost, "/entries", AddEntryRequest{Title: "T", Body: "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := decodeBody[errResponse](t, w); got.Code != codeAuth {
		t.Errorf("code = %q", got.Code)
	}
	if env.fake.RequestCount() != before {
		t.Error("request reached storage without a token")
	}
}

func TestAddEntry_Created(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/entries",
		AddEntryRequest{Title: "My New Tale", Body: "Para one\n\nPara two"},
		"Authorization", "Bearer tok")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	res := decodeBody[AddEntryResponse](t, w)
	if res.Entry.ID != "my-new-tale" || res.Entry.StoryText != `Para one\n\nPara two` {
		t.Errorf("entry = %+v", res.Entry)
	}
	if puts := env.fake.Puts(); len(puts) != 1 || puts[0].Auth != "Bearer tok" {
		t.Errorf("puts = %+v", puts)
	}

	w = env.do(t, http.MethodGet, "/catalog", nil)
	if c := decodeBody[CatalogResponse](t, w); c.Count != 3 || c.Origin != catalog.OriginRemote {
		t.Errorf("catalog = %+v", c)
	}
}

func TestAddEntry_Markdown(t *testing.T) {
	env := newTestEnv(t)
	doc := "---\ntitle: Paper Lanterns\nsubtitle: Night market\n---\nFirst line\nsecond line\n"
	req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(doc))
	req.Header.Set("Content-Type", "text/markdown; charset=utf-8")
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	res := decodeBody[AddEntryResponse](t, w)
	if res.Entry.ID != "paper-lanterns" || res.Entry.Subtitle != "Night market" {
		t.Errorf("entry = %+v", res.Entry)
	}
	if res.Entry.StoryText != `First line\nsecond line` {
		t.Errorf("storyText = %q", res.Entry.StoryText)
	}
}

func TestAddEntry_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/entries", AddEntryRequest{Body: "x"}, "Authorization", "Bearer tok")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing title: status = %d", w.Code)
	}
	if got := decodeBody[errResponse](t, w); got.Field != "title" {
		t.Errorf("field = %q", got.Field)
	}

	w = env.do(t, http.MethodPost, "/entries", AddEntryRequest{Title: "Neon Rain: Ancient Streets", Body: "x"}, "Authorization", "Bearer tok")
	if w.Code != http.StatusConflict || decodeBody[errResponse](t, w).Code != codeDuplicate {
		t.Errorf("duplicate: status = %d body = %s", w.Code, w.Body.String())
	}

	env.fake.Token = "right"
	w = env.do(t, http.MethodPost, "/entries", AddEntryRequest{Title: "Other", Body: "x"}, "Authorization", "Bearer wrong")
	if w.Code != http.StatusBadGateway {
		t.Errorf("rejected token: status = %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/entries", nil, "Authorization", "Bearer tok")
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty body: status = %d", w.Code)
	}
}

func TestReloadCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.fake.ExternalUpdate(t, append(seedEntries, models.Entry{ID: "c", Title: "C"}))

	w := env.do(t, http.MethodPost, "/catalog/reload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decodeBody[ReloadResponse](t, w); got.Count != 3 {
		t.Errorf("reload = %+v", got)
	}
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]models.RouteState{
		"":                          models.HomeState,
		"admin":                     {View: models.ViewAdmin},
		"%23clockwork-sparrow":      {View: models.ViewEntry, EntryID: "clockwork-sparrow"},
		"neon-rain-ancient-streets": {View: models.ViewEntry, EntryID: "neon-rain-ancient-streets"},
		"nonexistent-id":            models.HomeState,
	}
	for fragment, want := range cases {
		w := env.do(t, http.MethodGet, "/resolve?fragment="+fragment, nil)
		if got := decodeBody[ResolveResponse](t, w); got.Route != want {
			t.Errorf("fragment %q: route = %+v, want %+v", fragment, got.Route, want)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/sessions", CreateSessionRequest{Fragment: "#admin"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	view := decodeBody[SessionView](t, w)
	if view.Route.View != models.ViewAdmin {
		t.Errorf("initial route = %+v", view.Route)
	}
	base := "/sessions/" + view.ID

	w = env.do(t, http.MethodPost, base+"/entries/clockwork-sparrow/open", nil)
	if got := decodeBody[SessionView](t, w); got.Route.EntryID != "clockwork-sparrow" {
		t.Errorf("open: %+v", got.Route)
	}

	w = env.do(t, http.MethodPost, base+"/admin/toggle", nil)
	if got := decodeBody[SessionView](t, w); got.Route.View != models.ViewAdmin || got.Fragment != "admin" {
		t.Errorf("toggle: %+v", got)
	}

	w = env.do(t, http.MethodPut, base+"/fragment", FragmentRequest{Fragment: "nonexistent-id"})
	if got := decodeBody[SessionView](t, w); got.Route != models.HomeState || got.Fragment != "nonexistent-id" {
		t.Errorf("fragment: %+v", got)
	}

	w = env.do(t, http.MethodPost, base+"/home", nil)
	if got := decodeBody[SessionView](t, w); got.Fragment != "" {
		t.Errorf("home: %+v", got)
	}

	w = env.do(t, http.MethodDelete, base, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, base, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
}

func TestSessionAddEntry(t *testing.T) {
	env := newTestEnv(t)
	view := decodeBody[SessionView](t, env.do(t, http.MethodPost, "/sessions", nil))
	base := "/sessions/" + view.ID

	w := env.do(t, http.MethodPost, base+"/entries", AddEntryRequest{Title: "Tale", Body: "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("without credential: status = %d", w.Code)
	}

	w = env.do(t, http.MethodPut, base+"/credential", CredentialRequest{Token: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty token: status = %d", w.Code)
	}
	w = env.do(t, http.MethodPut, base+"/credential", CredentialRequest{Token: "tok"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("set credential: status = %d", w.Code)
	}

	w = env.do(t, http.MethodPost, base+"/entries", AddEntryRequest{Title: "Tale", Body: "x"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := env.fake.Entries(t); len(got) != 3 || got[2].ID != "tale" {
		t.Errorf("remote = %+v", got)
	}

	w = env.do(t, http.MethodDelete, base+"/credential", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("clear credential: status = %d", w.Code)
	}
	if got := decodeBody[SessionView](t, env.do(t, http.MethodGet, base, nil)); got.HasCredential {
		t.Error("credential still held")
	}
}

func TestSessionEvents_Stream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	view := decodeBody[SessionView](t, env.do(t, http.MethodPost, "/sessions", nil))

	resp, err := http.Get(srv.URL + "/sessions/" + view.ID + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for env.broker.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	env.do(t, http.MethodPost, "/sessions/"+view.ID+"/admin/toggle", nil)

	var sawRoute, sawAdmin bool
	timeout := time.After(2 * time.Second)
	for !sawRoute || !sawAdmin {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream ended early")
			}
			sawRoute = sawRoute || line == "event: route.changed"
			sawAdmin = sawAdmin || (sawRoute && strings.Contains(line, `"view":"admin"`))
		case <-timeout:
			t.Fatal("route.changed not streamed")
		}
	}

	// Closing the session ends the stream.
	env.do(t, http.MethodDelete, "/sessions/"+view.ID, nil)
	timeout = time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream still open after session close")
		}
	}
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/sessions/nope/home", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
