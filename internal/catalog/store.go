// Package catalog owns the ordered entry list shown to visitors: loading it
// from the published source, falling back to bundled entries, and preparing
// new entries from editor drafts.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/sync/singleflight"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/textcodec"
)

// Origin tells where the current catalog came from.
type Origin string

const (
	OriginFallback Origin = "fallback"
	OriginRemote   Origin = "remote"
)

// NoticeNoCatalog is reported when the source has no catalog yet.
const NoticeNoCatalog = "No catalog found. Using default entries. You can add new entries in admin mode."

// NoticeLoadFailed is reported when the source could not be read and the
// fallback entries are shown.
const NoticeLoadFailed = "Could not load the catalog. Showing default entries."

// LoadResult describes a completed load.
type LoadResult struct {
	Origin Origin
	Count  int
	// Notice is an informational message for the visitor, empty when there
	// is nothing to say.
	Notice string
}

// ChangeFunc is called after the catalog was replaced.
type ChangeFunc func(revision uint64)

// Store holds the catalog shared by every session of the process.
type Store struct {
	source   Source
	fallback []models.Entry
	logger   *slog.Logger
	group    singleflight.Group

	mu       sync.RWMutex
	entries  []models.Entry
	origin   Origin
	revision uint64
	notice   string

	subMu   sync.Mutex
	subs    map[int]ChangeFunc
	nextSub int
}

// NewStore creates a store showing fallback until the first successful load.
// source may be nil, in which case Load keeps the fallback.
func NewStore(source Source, fallback []models.Entry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		source:   source,
		fallback: models.CloneEntries(fallback),
		logger:   logger,
		entries:  models.CloneEntries(fallback),
		origin:   OriginFallback,
		subs:     make(map[int]ChangeFunc),
	}
}

// Entries returns a copy of the catalog in display order.
func (s *Store) Entries() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneEntries(s.entries)
}

// Snapshot returns the catalog together with its revision.
func (s *Store) Snapshot() ([]models.Entry, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneEntries(s.entries), s.revision
}

// Origin reports where the current catalog came from.
func (s *Store) Origin() Origin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origin
}

// Notice returns the notice of the last load, empty once remote data has
// been loaded.
func (s *Store) Notice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notice
}

// Revision increases by one on every replacement.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// FindByID looks an entry up by identifier.
func (s *Store) FindByID(id string) (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.Entry{}, false
}

// Subscribe registers fn for change notifications. Callbacks run on the
// goroutine that replaced the catalog and must not block.
func (s *Store) Subscribe(fn ChangeFunc) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Load fetches the catalog from the source. A missing resource shows the
// fallback entries and returns a notice. Any other failure also keeps the
// current entries and is returned as an error wrapping apperr.ErrTransport
// or apperr.ErrParse. Concurrent calls share one fetch.
func (s *Store) Load(ctx context.Context) (LoadResult, error) {
	if s.source == nil {
		return LoadResult{Origin: s.Origin(), Count: s.Len()}, nil
	}

	v, err, shared := s.group.Do("load", func() (any, error) {
		return s.load(ctx)
	})
	if shared {
		s.logger.Debug("catalog: load shared")
	}
	if err != nil {
		return LoadResult{Origin: s.Origin(), Count: s.Len()}, err
	}
	return v.(LoadResult), nil
}

func (s *Store) load(ctx context.Context) (LoadResult, error) {
	entries, err := s.source.Fetch(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if s.Origin() == OriginRemote {
			s.logger.Info("catalog: published catalog removed, showing fallback entries")
			s.mu.RLock()
			fallback := s.fallback
			s.mu.RUnlock()
			s.replace(fallback, OriginFallback)
		} else {
			s.logger.Info("catalog: no published catalog, keeping fallback entries")
		}
		s.setNotice(NoticeNoCatalog)
		return LoadResult{Origin: s.Origin(), Count: s.Len(), Notice: NoticeNoCatalog}, nil
	case err != nil:
		s.logger.Warn("catalog: load failed", slog.String("error", err.Error()))
		if s.Origin() == OriginFallback {
			s.setNotice(NoticeLoadFailed)
		}
		return LoadResult{}, fmt.Errorf("catalog: load: %w", err)
	}

	rev := s.replace(entries, OriginRemote)
	s.logger.Info("catalog: loaded",
		slog.Int("entries", len(entries)),
		slog.Uint64("revision", rev))
	return LoadResult{Origin: OriginRemote, Count: len(entries)}, nil
}

func (s *Store) setNotice(msg string) {
	s.mu.Lock()
	s.notice = msg
	s.mu.Unlock()
}

// Replace swaps the whole catalog after a confirmed remote write.
func (s *Store) Replace(entries []models.Entry) uint64 {
	return s.replace(entries, OriginRemote)
}

// ReplaceFallback swaps in new fallback entries. Once remote data has been
// loaded they are only kept for a later missing-catalog load and false is
// returned.
func (s *Store) ReplaceFallback(entries []models.Entry) bool {
	s.mu.Lock()
	s.fallback = models.CloneEntries(entries)
	if s.origin != OriginFallback {
		s.mu.Unlock()
		return false
	}
	s.entries = models.CloneEntries(entries)
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.notify(rev)
	return true
}

func (s *Store) replace(entries []models.Entry, origin Origin) uint64 {
	s.mu.Lock()
	s.entries = models.CloneEntries(entries)
	s.origin = origin
	if origin == OriginRemote {
		s.notice = ""
	}
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.notify(rev)
	return rev
}

func (s *Store) notify(rev uint64) {
	s.subMu.Lock()
	fns := make([]ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(rev)
	}
}

// Prepare turns a draft into a new entry for the current catalog without
// changing it. See PrepareFor.
func (s *Store) Prepare(draft models.Draft) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PrepareFor(s.entries, draft)
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// PrepareFor validates draft against entries and returns the entry to append.
//
// Errors: *apperr.ValidationError for a missing title or body, a title that
// yields no identifier or the reserved "admin", or a malformed thumbnail URL;
// apperr.ErrDuplicateIdentifier when another entry already has the id or a
// title that differs only in accents.
func PrepareFor(entries []models.Entry, draft models.Draft) (models.Entry, error) {
	draft.Body = lineBreaks.Replace(draft.Body)
	draft.Foreword = lineBreaks.Replace(draft.Foreword)

	if err := validateDraft(&draft); err != nil {
		return models.Entry{}, err
	}

	id := DeriveID(draft.Title)
	switch id {
	case "":
		return models.Entry{}, &apperr.ValidationError{Field: "title", Reason: "must contain at least one letter or digit"}
	case models.AdminFragment:
		return models.Entry{}, &apperr.ValidationError{Field: "title", Reason: "is reserved"}
	}
	folded := foldedID(draft.Title)
	for _, e := range entries {
		if e.ID == id || (e.Title != "" && foldedID(e.Title) == folded) {
			return models.Entry{}, fmt.Errorf("catalog: entry %q: %w", id, apperr.ErrDuplicateIdentifier)
		}
	}

	thumb := strings.TrimSpace(draft.ThumbnailURL)
	if thumb == "" {
		thumb = models.DefaultThumbnailURL
	}

	return models.Entry{
		ID:           id,
		Title:        draft.Title,
		Subtitle:     draft.Subtitle,
		ThumbnailURL: thumb,
		Foreword:     draft.Foreword,
		StoryText:    textcodec.ToStorage(draft.Body),
	}, nil
}

func validateDraft(d *models.Draft) error {
	err := validation.ValidateStruct(d,
		validation.Field(&d.Title, validation.Required.Error("is required")),
		validation.Field(&d.Body, validation.Required.Error("is required")),
		validation.Field(&d.ThumbnailURL, is.URL, validation.By(httpURL)),
	)
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if errors.As(err, &errs) {
		// Report fields in form order.
		for _, field := range []string{"title", "body", "thumbnailUrl"} {
			if ferr, ok := errs[field]; ok {
				return &apperr.ValidationError{Field: field, Reason: ferr.Error()}
			}
		}
	}
	return &apperr.ValidationError{Reason: err.Error()}
}

func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return errors.New("must be an http or https URL")
	}
	return nil
}
