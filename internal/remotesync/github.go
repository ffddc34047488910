package remotesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/models"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubConfig locates the catalog file in a repository.
type GitHubConfig struct {
	APIURL string
	Owner  string
	Repo   string
	Path   string
	Branch string
}

// GitHub stores the catalog through the repository contents API. The blob
// SHA of the file is the version marker.
type GitHub struct {
	client *Client
	cfg    GitHubConfig
}

var _ Backend = (*GitHub)(nil)

// NewGitHub creates a contents-API backend.
func NewGitHub(client *Client, cfg GitHubConfig) *GitHub {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultGitHubAPI
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.Path = strings.TrimLeft(cfg.Path, "/")
	return &GitHub{client: client, cfg: cfg}
}

type contentsFile struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type contentsPut struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// Resource returns the file path inside the repository.
func (g *GitHub) Resource() string {
	return g.cfg.Path
}

func (g *GitHub) contentsURL(withRef bool) *url.URL {
	u, err := url.Parse(g.cfg.APIURL)
	if err != nil {
		u = &url.URL{Scheme: "https", Host: "api.github.com"}
	}
	u.Path = path.Join("/", u.Path, "repos", g.cfg.Owner, g.cfg.Repo, "contents", g.cfg.Path)
	if withRef && g.cfg.Branch != "" {
		q := u.Query()
		q.Set("ref", g.cfg.Branch)
		u.RawQuery = q.Encode()
	}
	return u
}

func (g *GitHub) get(ctx context.Context, cred Credential) (*Response, *url.URL, error) {
	u := g.contentsURL(true)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, u, fmt.Errorf("remotesync: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if !cred.Empty() {
		cred.authorize(req)
	}
	resp, err := g.client.Do(ctx, req)
	return resp, u, err
}

// ReadMarker returns the blob SHA of the catalog file.
func (g *GitHub) ReadMarker(ctx context.Context, cred Credential) (string, error) {
	resp, u, err := g.get(ctx, cred)
	if err != nil {
		return "", err
	}
	switch {
	case resp.Status == http.StatusNotFound:
		return "", nil
	case resp.Status != http.StatusOK:
		return "", transportError(resp, u)
	}
	var file contentsFile
	if err := json.Unmarshal(resp.Body, &file); err != nil {
		return "", fmt.Errorf("remotesync: decode contents: %w: %v", apperr.ErrParse, err)
	}
	return file.SHA, nil
}

// Write creates or updates the file. A 409 means the SHA is stale; a 422 on
// the create path means the file appeared since it was read.
func (g *GitHub) Write(ctx context.Context, cred Credential, wr WriteRequest) (string, error) {
	payload, err := json.Marshal(contentsPut{
		Message: wr.Message,
		Content: wr.Content,
		SHA:     wr.Marker,
		Branch:  g.cfg.Branch,
	})
	if err != nil {
		return "", fmt.Errorf("remotesync: encode payload: %w", err)
	}

	u := g.contentsURL(false)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("remotesync: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	cred.authorize(req)

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return "", err
	}

	switch {
	case resp.Status == http.StatusOK || resp.Status == http.StatusCreated:
	case resp.Status == http.StatusConflict:
		return "", &apperr.ConflictError{Marker: wr.Marker}
	case resp.Status == http.StatusUnprocessableEntity && wr.Marker == "":
		return "", &apperr.ConflictError{}
	default:
		return "", transportError(resp, u)
	}

	var out struct {
		Content contentsFile `json:"content"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("remotesync: decode write response: %w: %v", apperr.ErrParse, err)
	}
	return out.Content.SHA, nil
}

// Fetch reads the catalog through the contents API.
func (g *GitHub) Fetch(ctx context.Context) ([]models.Entry, error) {
	resp, u, err := g.get(ctx, "")
	if err != nil {
		return nil, err
	}
	switch {
	case resp.Status == http.StatusNotFound:
		return nil, apperr.ErrNotFound
	case resp.Status != http.StatusOK:
		return nil, transportError(resp, u)
	}
	var file contentsFile
	if err := json.Unmarshal(resp.Body, &file); err != nil {
		return nil, fmt.Errorf("remotesync: decode contents: %w: %v", apperr.ErrParse, err)
	}
	if file.Encoding != "" && file.Encoding != "base64" {
		return nil, fmt.Errorf("remotesync: unsupported encoding %q: %w", file.Encoding, apperr.ErrParse)
	}
	doc, err := decodeBase64(file.Content)
	if err != nil {
		return nil, err
	}
	return DecodeDocument(doc)
}
