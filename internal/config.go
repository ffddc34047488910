package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Remote storage kinds.
const (
	RemoteKindGitHub = "github"
	RemoteKindHTTP   = "http"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Catalog CatalogConfig     `yaml:"catalog"`
	Remote  RemoteConfig      `yaml:"remote"`
	Publish PublishConfig     `yaml:"publish"`
	Session SessionConfig     `yaml:"session"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Publish.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return c.Events.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CatalogConfig controls where the catalog is read from at startup.
//
// URL is the published catalog (e.g. a GitHub Pages URL). When empty the
// catalog is read through the remote backend. FallbackPath replaces the
// built-in entries and is watched for changes.
type CatalogConfig struct {
	URL          string        `yaml:"url"`
	FallbackPath string        `yaml:"fallback_path"`
	LoadTimeout  time.Duration `yaml:"load_timeout"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, is.URL),
		validation.Field(&c.LoadTimeout, validation.Required),
	)
}

// RemoteConfig describes the version-controlled store that receives commits.
type RemoteConfig struct {
	Kind              string        `yaml:"kind"`
	APIURL            string        `yaml:"api_url"`
	Owner             string        `yaml:"owner"`
	Repo              string        `yaml:"repo"`
	Path              string        `yaml:"path"`
	Branch            string        `yaml:"branch"`
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	UserAgent         string        `yaml:"user_agent"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if c.Kind == "" {
		c.Kind = RemoteKindGitHub
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.Required, validation.In(RemoteKindGitHub, RemoteKindHTTP)),
		validation.Field(&c.APIURL, is.URL),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	); err != nil {
		return err
	}
	switch c.Kind {
	case RemoteKindGitHub:
		return validation.ValidateStruct(c,
			validation.Field(&c.Owner, validation.Required),
			validation.Field(&c.Repo, validation.Required),
			validation.Field(&c.Path, validation.Required),
		)
	default:
		return validation.ValidateStruct(c,
			validation.Field(&c.URL, validation.Required, is.URL),
		)
	}
}

// PublishConfig tunes how long a committed entry is polled for on the
// published catalog.
type PublishConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

// Validate validates the publish configuration.
func (c *PublishConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PollInterval, validation.Required),
		validation.Field(&c.PollTimeout, validation.Required, validation.Min(c.PollInterval)),
	)
}

// SessionConfig holds visitor session settings. A zero IdleTimeout keeps
// sessions until they are closed explicitly.
type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IdleTimeout, validation.Min(time.Duration(0))),
	)
}

// EventsConfig holds SSE settings.
type EventsConfig struct {
	CatalogThrottle time.Duration `yaml:"catalog_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CatalogThrottle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Catalog: CatalogConfig{
			LoadTimeout: 15 * time.Second,
		},
		Remote: RemoteConfig{
			Kind:    RemoteKindGitHub,
			Path:    "stories.json",
			Branch:  "main",
			Timeout: 30 * time.Second,
		},
		Publish: PublishConfig{
			PollInterval: 5 * time.Second,
			PollTimeout:  2 * time.Minute,
		},
		Session: SessionConfig{
			IdleTimeout: 30 * time.Minute,
		},
		Events: EventsConfig{
			CatalogThrottle: 2 * time.Second,
		},
	}
}
