package internal

import (
	"io"
	"log/slog"

	"github.com/starford/echoes/internal/remotesync"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	cred      remotesync.Credential
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects the JSON log. The MCP server owns stdout, so it
// logs to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithCredential sets the storage token used by the MCP server and the add
// command. It is never logged.
func WithCredential(cred remotesync.Credential) Option {
	return func(a *application) {
		a.cred = cred
	}
}

func (a *application) newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}
