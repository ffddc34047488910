package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/remotesync"
)

//go:embed fallback.json
var fallbackJSON []byte

// DefaultFallback returns the bundled entries shown until a remote catalog
// has been loaded.
func DefaultFallback() []models.Entry {
	entries, err := remotesync.DecodeDocument(fallbackJSON)
	if err != nil {
		panic(fmt.Sprintf("catalog: bundled fallback is invalid: %v", err))
	}
	return entries
}

// LoadFallbackFile reads a fallback catalog from a JSON file.
func LoadFallbackFile(path string) ([]models.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read fallback %s: %w", path, err)
	}
	entries, err := remotesync.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: fallback %s: %w", path, err)
	}
	return entries, nil
}
