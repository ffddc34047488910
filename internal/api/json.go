package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/entryservice"
	"github.com/starford/echoes/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// Error codes.
const (
	codeValidation  = "validation"
	codeAuth        = "auth_required"
	codeDuplicate   = "duplicate_identifier"
	codeConflict    = "conflict"
	codeNotFound    = "not_found"
	codeTransport   = "transport"
	codeUnpublished = "not_published"
)

// writeError maps the error taxonomy onto HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var ve *apperr.ValidationError
	var te *apperr.TransportError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: ve.Error(), Code: codeValidation, Field: ve.Field})
	case errors.Is(err, apperr.ErrAuthRequired):
		writeJSON(w, http.StatusUnauthorized, errResponse{Error: "storage token required", Code: codeAuth})
	case errors.Is(err, apperr.ErrDuplicateIdentifier):
		writeJSON(w, http.StatusConflict, errResponse{Error: "an entry with this title already exists", Code: codeDuplicate})
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errResponse{Error: "catalog changed remotely, reload and retry", Code: codeConflict})
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusNotFound, errResponse{Error: "not found", Code: codeNotFound})
	case errors.Is(err, entryservice.ErrNotPublished):
		writeJSON(w, http.StatusGatewayTimeout, errResponse{Error: err.Error(), Code: codeUnpublished})
	case errors.As(err, &te):
		writeJSON(w, http.StatusBadGateway, errResponse{Error: te.Error(), Code: codeTransport})
	case errors.Is(err, apperr.ErrParse), errors.Is(err, apperr.ErrTransport):
		writeJSON(w, http.StatusBadGateway, errResponse{Error: err.Error(), Code: codeTransport})
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
