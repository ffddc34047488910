package remotesync

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/textcodec"
)

// EncodeDocument serializes the catalog in its storage JSON shape.
func EncodeDocument(entries []models.Entry) ([]byte, error) {
	if entries == nil {
		entries = []models.Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("remotesync: encode catalog: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeDocument parses a catalog document. Bodies carrying literal line
// breaks are normalized to storage text.
func DecodeDocument(data []byte) ([]models.Entry, error) {
	var entries []models.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("remotesync: decode catalog: %w: %v", apperr.ErrParse, err)
	}
	for i := range entries {
		if strings.Contains(entries[i].StoryText, "\n") {
			entries[i].StoryText = textcodec.ToStorage(entries[i].StoryText)
		}
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return entries, nil
}

// decodeBase64 accepts standard base64 with embedded line breaks, as the
// contents API wraps its output at 60 columns.
func decodeBase64(s string) ([]byte, error) {
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(s)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("remotesync: decode content: %w: %v", apperr.ErrParse, err)
	}
	return data, nil
}
