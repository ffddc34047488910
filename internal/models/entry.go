// Package models defines the domain types for Echoes.
package models

// Entry is one narrative item of the catalog. StoryText is storage text and
// never contains a literal newline.
type Entry struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Foreword     string `json:"foreword"`
	StoryText    string `json:"storyText"`
}

// Draft is an editor submission before it becomes an Entry.
// Body is display text (literal line breaks).
type Draft struct {
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Foreword     string `json:"foreword"`
	Body         string `json:"body"`
}

// DefaultThumbnailURL is used when a draft carries no thumbnail.
const DefaultThumbnailURL = "https://placehold.co/600x350/E0BBE4/ffffff?text=New+Story+Image"

// CloneEntries returns a copy of entries that shares no backing array.
func CloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
