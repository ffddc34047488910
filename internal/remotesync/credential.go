package remotesync

import (
	"log/slog"
	"net/http"
	"strings"
)

// Credential is an opaque bearer token. It is only ever written into the
// Authorization header of storage API requests; formatting and logging it
// yields a redacted placeholder.
type Credential string

// Empty reports whether no usable token is held.
func (c Credential) Empty() bool {
	return strings.TrimSpace(string(c)) == ""
}

func (c Credential) String() string {
	if c.Empty() {
		return ""
	}
	return "[redacted]"
}

// LogValue implements slog.LogValuer.
func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

func (c Credential) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(c)))
}
