package remotesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/echoes/internal/apperr"
)

const maxResponseBytes = 10 << 20

// ClientConfig configures the shared HTTP client.
type ClientConfig struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// Client performs HTTP requests paced by a per-host rate limiter.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limit      rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Response is a fully-read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewClient creates a Client. A zero RequestsPerSecond disables pacing.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "echoes"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  ua,
		limit:      limit,
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(c.limit, 1)
	c.limiters[host] = l
	return l
}

// Do sends req and reads the whole body. Network failures are returned as
// *apperr.TransportError with a zero status; HTTP statuses are left to the
// caller.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	if err := c.limiterFor(req.URL.Host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("remotesync: rate limiter: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransportError{Message: err.Error(), URL: redactURL(req.URL)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &apperr.TransportError{Status: resp.StatusCode, Message: "read body: " + err.Error(), URL: redactURL(req.URL)}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// transportError builds a TransportError from a non-success response,
// preferring the "message" field of a JSON error body.
func transportError(resp *Response, u *url.URL) *apperr.TransportError {
	msg := http.StatusText(resp.Status)
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body, &body) == nil && body.Message != "" {
		msg = body.Message
	}
	return &apperr.TransportError{Status: resp.Status, Message: msg, URL: redactURL(u)}
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
