// Package session hosts visitors in-process. Each session is one logical
// thread: router callbacks, catalog notifications and the continuations of
// remote calls all run in order on the session's own loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/entryservice"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/remotesync"
	"github.com/starford/echoes/internal/router"
	"github.com/starford/echoes/internal/sse"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Level classifies a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is a user-visible message.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const recentNotices = 10

// Publisher receives session events.
type Publisher interface {
	Publish(event sse.Event)
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID            string            `json:"id"`
	Fragment      string            `json:"fragment"`
	Route         models.RouteState `json:"route"`
	HasCredential bool              `json:"hasCredential"`
	Saving        bool              `json:"saving"`
	Notices       []Notice          `json:"notices"`
}

// Session is one visitor.
type Session struct {
	id     string
	svc    *entryservice.Service
	pub    Publisher
	logger *slog.Logger

	loop   *loop
	loc    *router.MemoryLocation
	router *router.Router

	// Owned by the loop.
	cred    remotesync.Credential
	saving  int
	notices []Notice

	ctx           context.Context
	cancel        context.CancelFunc
	stopCatalog   func()
	lastActive    atomic.Int64
	closeOnce     sync.Once
	backgroundJob sync.WaitGroup
}

func newSession(id, fragment string, svc *entryservice.Service, pub Publisher, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		svc:    svc,
		pub:    pub,
		logger: logger.With(slog.String("session_id", id)),
		loop:   newLoop(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.touch()

	s.loc = router.NewMemoryLocation(fragment, func(fn func()) { s.loop.post(fn) })
	s.router = router.New(s.loc, svc.Store(), s.routeChanged)
	s.loop.post(func() { s.router.Start() })
	if msg := svc.Store().Notice(); msg != "" {
		s.loop.post(func() { s.notify(LevelInfo, msg) })
	}

	s.stopCatalog = svc.Store().Subscribe(func(uint64) {
		s.loop.post(func() { s.router.Refresh() })
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last visitor interaction.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) routeChanged(prev, next models.RouteState) {
	s.logger.Debug("route changed",
		slog.String("from", string(prev.View)),
		slog.String("to", string(next.View)),
		slog.String("entry_id", next.EntryID))
	s.publish(sse.TypeRouteChanged, next)
}

func (s *Session) publish(kind string, data any) {
	if s.pub != nil {
		s.pub.Publish(sse.Event{Type: kind, Topic: s.id, Data: data})
	}
}

// notify must run on the loop.
func (s *Session) notify(level Level, msg string) {
	n := Notice{Level: level, Message: msg, At: time.Now().UTC()}
	s.notices = append(s.notices, n)
	if len(s.notices) > recentNotices {
		s.notices = s.notices[len(s.notices)-recentNotices:]
	}
	s.publish(sse.TypeNotice, n)
}

// Notify posts a notice to the session.
func (s *Session) Notify(level Level, msg string) {
	s.loop.post(func() { s.notify(level, msg) })
}

// View returns the current state. Fragment changes issued before the call
// are reflected.
func (s *Session) View(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.loop.call(ctx, func() {
		snap = Snapshot{
			ID:            s.id,
			Fragment:      s.loc.Fragment(),
			Route:         s.router.State(),
			HasCredential: !s.cred.Empty(),
			Saving:        s.saving > 0,
			Notices:       append([]Notice{}, s.notices...),
		}
	})
	return snap, err
}

// act runs a navigation action and returns the view after the resulting
// fragment event has been handled.
func (s *Session) act(ctx context.Context, fn func()) (Snapshot, error) {
	s.touch()
	if err := s.loop.call(ctx, fn); err != nil {
		return Snapshot{}, err
	}
	return s.View(ctx)
}

// Navigate writes fragment as if the visitor edited the URL.
func (s *Session) Navigate(ctx context.Context, fragment string) (Snapshot, error) {
	return s.act(ctx, func() { s.loc.SetFragment(fragment) })
}

// GoHome navigates to the home view.
func (s *Session) GoHome(ctx context.Context) (Snapshot, error) {
	return s.act(ctx, s.router.GoHome)
}

// GoToEntry navigates to an entry. Unknown ids end on the home view.
func (s *Session) GoToEntry(ctx context.Context, id string) (Snapshot, error) {
	return s.act(ctx, func() { s.router.GoToEntry(id) })
}

// ToggleAdmin enters or leaves the admin view.
func (s *Session) ToggleAdmin(ctx context.Context) (Snapshot, error) {
	return s.act(ctx, s.router.ToggleAdmin)
}

// SetCredential holds a storage token for later saves. It is kept in memory
// only.
func (s *Session) SetCredential(ctx context.Context, cred remotesync.Credential) error {
	s.touch()
	return s.loop.call(ctx, func() { s.cred = cred })
}

// ClearCredential forgets the held token.
func (s *Session) ClearCredential(ctx context.Context) error {
	s.touch()
	return s.loop.call(ctx, func() { s.cred = "" })
}

// AddEntry saves draft with the held credential. The remote round trip runs
// off the loop; its outcome is posted back as a notice, followed by another
// notice once the entry is visible on the published catalog (or polling gave
// up). The caller receives the same outcome directly.
func (s *Session) AddEntry(ctx context.Context, draft models.Draft) (*entryservice.AddResult, error) {
	s.touch()

	var cred remotesync.Credential
	if err := s.loop.call(ctx, func() {
		cred = s.cred
		s.saving++
	}); err != nil {
		return nil, err
	}

	type outcome struct {
		res *entryservice.AddResult
		err error
	}
	out := make(chan outcome, 1)

	s.backgroundJob.Add(1)
	go func() {
		defer s.backgroundJob.Done()
		// The write is not cancelled when the caller goes away; only closing
		// the session abandons it.
		res, err := s.svc.AddEntry(s.ctx, draft, cred)
		out <- outcome{res, err}
		s.loop.post(func() { s.addFinished(res, err) })
	}()

	select {
	case o := <-out:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrClosed
	}
}

// addFinished runs on the loop.
func (s *Session) addFinished(res *entryservice.AddResult, err error) {
	s.saving--
	if err != nil {
		s.logger.Warn("save failed", slog.String("error", err.Error()))
		s.notify(LevelError, saveFailureMessage(err))
		return
	}

	s.notify(LevelSuccess, fmt.Sprintf("%q saved. It will appear on the published site shortly.", res.Entry.Title))

	id, title := res.Entry.ID, res.Entry.Title
	s.backgroundJob.Add(1)
	go func() {
		defer s.backgroundJob.Done()
		err := s.svc.WaitVisible(s.ctx, id)
		s.loop.post(func() {
			switch {
			case err == nil:
				s.notify(LevelInfo, fmt.Sprintf("%q is now live.", title))
			case errors.Is(err, entryservice.ErrNotPublished):
				s.notify(LevelInfo, fmt.Sprintf("%q is saved but not yet visible on the published site. Reload later.", title))
			}
		})
	}()
}

func saveFailureMessage(err error) string {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve) && (ve.Field == "title" || ve.Field == "body") && ve.Reason == "is required":
		return "Title and body are required."
	case errors.As(err, &ve):
		return fmt.Sprintf("Invalid %s: %s.", ve.Field, ve.Reason)
	case errors.Is(err, apperr.ErrDuplicateIdentifier):
		return "An entry with this title already exists. Please choose a different title."
	case errors.Is(err, apperr.ErrAuthRequired):
		return "A storage token is required to save entries. Enter it in admin mode."
	case errors.Is(err, apperr.ErrConflict):
		return "The catalog was changed by someone else. Reload and try again."
	default:
		return fmt.Sprintf("Failed to save entry: %s. Check your token and permissions.", err)
	}
}

// Close ends the session, abandoning pending continuations.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.stopCatalog()
		s.cancel()
		s.loop.stop()
		s.router.Stop()
		s.publish(sse.TypeSessionClosed, map[string]string{"id": s.id})
		s.backgroundJob.Wait()
		s.logger.Debug("session closed")
	})
}
