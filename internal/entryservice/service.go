// Package entryservice composes the catalog, the text codec and remote
// storage into the operations exposed by the HTTP API, the MCP server and
// visitor sessions.
package entryservice

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/catalog"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/remotesync"
	"github.com/starford/echoes/internal/textcodec"
)

// ExcerptLength is the preview size of list items, in runes.
const ExcerptLength = 160

// ErrNotPublished is returned by WaitVisible when the entry did not show up
// on the published catalog before the poll timeout.
var ErrNotPublished = errors.New("entry not yet published")

// EntryListItem is a lightweight item in a list response.
type EntryListItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Excerpt      string `json:"excerpt"`
}

// EntryDetail is the full representation of an entry.
type EntryDetail struct {
	models.Entry
	Display string        `json:"display"`
	HTML    template.HTML `json:"html"`
}

// AddResult describes a committed entry.
type AddResult struct {
	Entry    models.Entry `json:"entry"`
	Marker   string       `json:"marker"`
	Created  bool         `json:"created"`
	Revision uint64       `json:"revision"`
}

// Config tunes propagation polling.
type Config struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Service coordinates catalog and remote storage operations.
type Service struct {
	store  *catalog.Store
	syncer *remotesync.Syncer
	// published is polled after a commit; nil disables polling.
	published catalog.Source
	cfg       Config
	logger    *slog.Logger

	// commitMu serializes commits made from this process so that each one
	// builds on the catalog produced by the previous one.
	commitMu sync.Mutex
}

// NewService creates a new entry service.
func NewService(store *catalog.Store, syncer *remotesync.Syncer, published catalog.Source, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Minute
	}
	return &Service{
		store:     store,
		syncer:    syncer,
		published: published,
		cfg:       cfg,
		logger:    logger,
	}
}

// Store returns the catalog store.
func (s *Service) Store() *catalog.Store {
	return s.store
}

// ListEntries returns the catalog in display order.
func (s *Service) ListEntries(_ context.Context) []EntryListItem {
	entries := s.store.Entries()
	items := make([]EntryListItem, len(entries))
	for i, e := range entries {
		items[i] = EntryListItem{
			ID:           e.ID,
			Title:        e.Title,
			Subtitle:     e.Subtitle,
			ThumbnailURL: e.ThumbnailURL,
			Excerpt:      textcodec.Excerpt(e.StoryText, ExcerptLength),
		}
	}
	return items
}

// GetEntry returns one entry with its body rendered for display.
func (s *Service) GetEntry(_ context.Context, id string) (*EntryDetail, error) {
	e, ok := s.store.FindByID(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &EntryDetail{
		Entry:   e,
		Display: textcodec.ToDisplay(e.StoryText),
		HTML:    textcodec.RenderHTML(e.StoryText),
	}, nil
}

// AddEntry prepares draft against the current catalog, commits the extended
// catalog to remote storage and, on success, replaces the in-memory catalog.
// On any failure the catalog is left untouched.
func (s *Service) AddEntry(ctx context.Context, draft models.Draft, cred remotesync.Credential) (*AddResult, error) {
	if s.syncer == nil {
		return nil, fmt.Errorf("entryservice: remote storage is not configured: %w", apperr.ErrAuthRequired)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	current := s.store.Entries()
	entry, err := catalog.PrepareFor(current, draft)
	if err != nil {
		return nil, err
	}
	next := append(current, entry)

	res, err := s.syncer.Commit(ctx, next, cred)
	if err != nil {
		return nil, err
	}

	rev := s.store.Replace(next)
	s.logger.Info("entry added",
		slog.String("entry_id", entry.ID),
		slog.Bool("created", res.Created),
		slog.Uint64("revision", rev))

	return &AddResult{
		Entry:    entry,
		Marker:   res.Marker,
		Created:  res.Created,
		Revision: rev,
	}, nil
}

// Reload fetches the catalog from its source again.
func (s *Service) Reload(ctx context.Context) (catalog.LoadResult, error) {
	return s.store.Load(ctx)
}

// WaitVisible polls the published catalog until it contains id. It returns
// ErrNotPublished when the poll timeout elapses first.
func (s *Service) WaitVisible(ctx context.Context, id string) error {
	if s.published == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(s.cfg.PollInterval), 1)
	attempts := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return s.notPublished(ctx, id, attempts)
		}
		attempts++

		entries, err := s.published.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return s.notPublished(ctx, id, attempts)
			}
			s.logger.Debug("publish poll failed",
				slog.String("entry_id", id),
				slog.String("error", err.Error()))
			continue
		}
		for _, e := range entries {
			if e.ID == id {
				s.logger.Info("entry published",
					slog.String("entry_id", id),
					slog.Int("attempts", attempts))
				return nil
			}
		}
	}
}

func (s *Service) notPublished(ctx context.Context, id string, attempts int) error {
	// Cancellation by the caller is not a publishing problem.
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	s.logger.Warn("entry not published in time",
		slog.String("entry_id", id),
		slog.Int("attempts", attempts),
		slog.Duration("timeout", s.cfg.PollTimeout))
	return fmt.Errorf("entryservice: %s after %s: %w", id, s.cfg.PollTimeout, ErrNotPublished)
}
