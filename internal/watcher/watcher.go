package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"video-transcriber/internal/jobs"
)

// BatchHandler runs one batch of newly arrived files. Returning
// jobs.ErrSessionBusy keeps the files queued for the next window.
type BatchHandler func(ctx context.Context, paths []string) error

var mediaExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".m4v", ".flv"}

// IsMediaFile checks if the file has a supported video extension.
func IsMediaFile(path string) bool {
	return slices.Contains(mediaExtensions, strings.ToLower(filepath.Ext(path)))
}

// Watcher collects new media files in a directory and hands them over in batches.
type Watcher struct {
	dir     string
	settle  time.Duration
	handler BatchHandler
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
}

// New creates a watcher on dir. Files are batched once no new activity is seen for settle.
func New(dir string, settle time.Duration, handler BatchHandler, logger zerolog.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("batch handler is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	if settle <= 0 {
		settle = 2 * time.Second
	}

	return &Watcher{
		dir:     dir,
		settle:  settle,
		handler: handler,
		logger:  logger.With().Str("component", "watcher").Str("dir", dir).Logger(),
		watcher: watcher,
	}, nil
}

// Start monitors the directory until ctx is done. At most one batch runs at a time.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info().Dur("settle", w.settle).Strs("formats", mediaExtensions).Msg("file watcher started")

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.settle)
	timer.Stop()
	defer timer.Stop()

	var timerC <-chan time.Time
	arm := func() {
		timer.Reset(w.settle)
		timerC = timer.C
	}

	var running []string
	var done chan error

	for {
		select {
		case <-ctx.Done():
			if done != nil {
				w.logger.Info().Msg("waiting for running batch to return")
				<-done
			}
			w.logger.Info().Msg("file watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !IsMediaFile(event.Name) {
				w.logger.Debug().Str("file", event.Name).Msg("ignoring non-media file")
				continue
			}

			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				if _, seen := pending[event.Name]; !seen && event.Has(fsnotify.Create) {
					w.logger.Info().Str("file", event.Name).Msg("new media detected")
				}
				pending[event.Name] = struct{}{}
				arm()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
			}

		case <-timerC:
			timerC = nil
			if done != nil || len(pending) == 0 {
				continue
			}

			running = w.ready(pending)
			clear(pending)
			if len(running) == 0 {
				continue
			}

			done = make(chan error, 1)
			go func(paths []string, result chan<- error) {
				result <- w.handler(ctx, paths)
			}(running, done)

		case err := <-done:
			done = nil
			switch {
			case errors.Is(err, jobs.ErrSessionBusy):
				w.logger.Info().Int("files", len(running)).Msg("session busy, batch requeued")
				for _, path := range running {
					pending[path] = struct{}{}
				}
			case err != nil:
				w.logger.Error().Err(err).Int("files", len(running)).Msg("batch failed")
			}
			running = nil
			if len(pending) > 0 {
				arm()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// Stop closes the file watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// ready returns the pending files that still exist and are non-empty, sorted.
func (w *Watcher) ready(pending map[string]struct{}) []string {
	paths := make([]string, 0, len(pending))
	for path := range pending {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Size() == 0 {
			continue
		}
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}
