package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const fallbackDebounce = 200 * time.Millisecond

// WatchFallback reloads the fallback file whenever it changes and swaps it
// into store while the store still shows fallback entries. It blocks until
// ctx is cancelled.
//
// The parent directory is watched rather than the file so that editors that
// save through rename are picked up.
func WatchFallback(ctx context.Context, store *Store, path string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("fallback watcher: started", slog.String("path", abs))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(fallbackDebounce)
			timerCh = timer.C
		} else {
			timer.Reset(fallbackDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("fallback watcher: stopped")
			return nil

		case <-timerCh:
			reloadFallback(store, abs, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("fallback watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reloadFallback(store *Store, path string, logger *slog.Logger) {
	entries, err := LoadFallbackFile(path)
	if err != nil {
		logger.Warn("fallback watcher: reload failed", slog.String("error", err.Error()))
		return
	}
	if !store.ReplaceFallback(entries) {
		logger.Debug("fallback watcher: remote catalog active, change ignored")
		return
	}
	logger.Info("fallback watcher: reloaded", slog.Int("entries", len(entries)))
}
