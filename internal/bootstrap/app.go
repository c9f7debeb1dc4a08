package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"video-transcriber/internal/artifacts"
	"video-transcriber/internal/config"
	"video-transcriber/internal/diagnostics"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/jobs"
	"video-transcriber/internal/notify"
	"video-transcriber/internal/transcribe"
)

var (
	// ErrNotAccepted is returned when a command does not apply to the current phase.
	ErrNotAccepted = errors.New("not accepted in current phase")
	// ErrNothingToSave is returned when no single-file transcript is held in the session.
	ErrNothingToSave = errors.New("no transcript to save")
	// ErrNoFiles is returned when a selection contains no usable files.
	ErrNoFiles = errors.New("no files selected")
	// ErrNotRunning is returned when a command is sent after the event loop stopped.
	ErrNotRunning = errors.New("event loop is not running")
)

const (
	inboxSize   = 64
	persistSize = 64
	eventBuffer = 1000
)

// Uploader transfers one local file and returns its server-side path.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Summarizer requests a summary document for a finished transcript.
type Summarizer interface {
	Summarize(ctx context.Context, request transcribe.SummaryRequest) (transcribe.SummaryResult, error)
}

// ProgressChannel is the push channel the worker service reports progress on.
type ProgressChannel interface {
	Events() <-chan transcribe.ChannelEvent
	StartTranscription(ctx context.Context, serverPath string) error
	Close() error
}

// TimerFunc starts a ticker or timer and returns its channel and stop function.
type TimerFunc func(d time.Duration) (<-chan time.Time, func())

// Deps holds the collaborators an App drives. Zero values get production defaults
// where one exists.
type Deps struct {
	Uploader    Uploader
	Summarizer  Summarizer
	DialChannel func(ctx context.Context) (ProgressChannel, error)
	Writer      *artifacts.Writer
	Notifier    notify.Notifier
	Checker     *diagnostics.Checker
	Logger      zerolog.Logger
	NewTicker   TimerFunc
	NewTimer    TimerFunc
	NewID       func() string
	RedialDelay time.Duration
}

// App owns the session and runs the single event loop that mutates it.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport

	uploader    Uploader
	summarizer  Summarizer
	dialChannel func(ctx context.Context) (ProgressChannel, error)
	writer      *artifacts.Writer
	notifier    notify.Notifier
	checker     *diagnostics.Checker
	logger      zerolog.Logger
	newTicker   TimerFunc
	newTimer    TimerFunc
	newID       func() string
	redialDelay time.Duration

	events  *jobs.EventBus
	inbox   chan message
	persist chan persistRequest
	started atomic.Bool
	stopped chan struct{}

	mu      sync.Mutex
	changed chan struct{}
}

// Open loads and validates settings from store and wires production collaborators.
func Open(store config.Store, logger zerolog.Logger, console io.Writer) (*App, error) {
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := config.Validate(&settings); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", store.Path(), err)
	}

	app := New(settings, Deps{
		Uploader:   transcribe.NewUploadClient(settings.ServerURL, config.UploadTimeout(settings), logger),
		Summarizer: transcribe.NewSummaryClient(settings.ServerURL, config.SummaryTimeout(settings), logger),
		DialChannel: func(ctx context.Context) (ProgressChannel, error) {
			channel, err := transcribe.DialChannel(ctx, settings.ChannelURL, logger)
			if err != nil {
				return nil, err
			}
			return channel, nil
		},
		Notifier: notify.New(settings.Notifications, console),
		Checker:  diagnostics.NewChecker(),
		Logger:   logger,
	})
	app.Store = store
	return app, nil
}

// New builds an App around settings and deps without touching the network.
func New(settings domain.Settings, deps Deps) *App {
	app := &App{
		Settings:    settings,
		Jobs:        jobs.NewManager(),
		uploader:    deps.Uploader,
		summarizer:  deps.Summarizer,
		dialChannel: deps.DialChannel,
		writer:      deps.Writer,
		notifier:    deps.Notifier,
		checker:     deps.Checker,
		logger:      deps.Logger.With().Str("component", "app").Logger(),
		newTicker:   deps.NewTicker,
		newTimer:    deps.NewTimer,
		newID:       deps.NewID,
		redialDelay: deps.RedialDelay,
		events:      jobs.NewEventBus(eventBuffer),
		inbox:       make(chan message, inboxSize),
		persist:     make(chan persistRequest, persistSize),
		stopped:     make(chan struct{}),
		changed:     make(chan struct{}),
	}

	if app.writer == nil {
		app.writer = artifacts.NewWriter(settings.OutputDir)
	}
	if app.notifier == nil {
		app.notifier = notify.Multi{}
	}
	if app.newTicker == nil {
		app.newTicker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	if app.newTimer == nil {
		app.newTimer = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTimer(d)
			return t.C, func() { t.Stop() }
		}
	}
	if app.newID == nil {
		app.newID = uuid.NewString
	}
	if app.redialDelay <= 0 {
		app.redialDelay = time.Second
	}
	return app
}

// Current returns a snapshot of the session.
func (a *App) Current() domain.Session {
	return a.Jobs.Current()
}

// Updates returns progress view events with sequence greater than sinceSeq.
func (a *App) Updates(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// Changes returns a channel that is closed on the next published update.
func (a *App) Changes() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.changed
}

// Select replaces the pending selection with paths.
func (a *App) Select(paths []string) (domain.Session, error) {
	fileJobs, err := buildJobs(paths)
	if err != nil {
		return a.Current(), err
	}

	session, accepted, err := a.call(jobs.SelectFiles{BatchID: a.newID(), Jobs: fileJobs})
	if err != nil {
		return session, err
	}
	if !accepted {
		return session, a.rejection("select files", session)
	}
	return session, nil
}

// Start begins the selected batch.
func (a *App) Start() (domain.Session, error) {
	session, accepted, err := a.call(jobs.StartBatch{})
	if err != nil {
		return session, err
	}
	if !accepted {
		return session, a.rejection("start batch", session)
	}
	return session, nil
}

// Transcribe selects paths and starts them as one batch.
func (a *App) Transcribe(paths []string) (domain.Session, error) {
	if _, err := a.Select(paths); err != nil {
		return a.Current(), err
	}
	return a.Start()
}

// TranscribeBatch runs paths to completion, first clearing a finished session.
// It returns jobs.ErrSessionBusy while another batch is in flight.
func (a *App) TranscribeBatch(ctx context.Context, paths []string) error {
	if a.Current().Phase.Terminal() {
		if _, err := a.Reset(); err != nil {
			return err
		}
	}
	if _, err := a.Transcribe(paths); err != nil {
		return err
	}

	final, err := a.Wait(ctx)
	if err != nil {
		return err
	}
	if final.Phase == domain.PhaseError && final.Error != nil {
		return fmt.Errorf("batch stopped at %s: %s", final.Error.File, final.Error.Message)
	}
	return nil
}

// Summarize requests a summary of the single-file transcript using a slides file.
func (a *App) Summarize(slidesPath, outputName string) (domain.Session, error) {
	slidesPath = strings.TrimSpace(slidesPath)
	info, err := os.Stat(slidesPath)
	if err != nil {
		return a.Current(), fmt.Errorf("slides file: %w", err)
	}
	if info.IsDir() {
		return a.Current(), fmt.Errorf("slides file %s is a directory", slidesPath)
	}

	session, accepted, err := a.call(jobs.SummaryRequested{SlidesPath: slidesPath, OutputName: outputName})
	if err != nil {
		return session, err
	}
	if !accepted {
		return session, a.rejection("summarize", session)
	}
	return session, nil
}

// SaveTranscript persists the single-file transcript and returns its path.
func (a *App) SaveTranscript() (string, error) {
	session := a.Current()
	if session.Batch || strings.TrimSpace(session.Transcript) == "" || len(session.Jobs) == 0 {
		return "", ErrNothingToSave
	}

	name := artifacts.TranscriptName(session.Jobs[0].DisplayName, a.Settings.TranscriptSuffix)
	path, err := a.writer.Save(name, []byte(session.Transcript))
	if err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	a.publish(jobs.Event{
		BatchID: session.BatchID,
		Type:    jobs.EventTypeArtifact,
		File:    session.Jobs[0].DisplayName,
		Path:    path,
		Message: "Saved " + name,
	})
	return path, nil
}

// Reset returns the session to idle. Late results from the abandoned batch are ignored.
func (a *App) Reset() (domain.Session, error) {
	session, _, err := a.call(jobs.Reset{})
	return session, err
}

// Wait blocks until the session reaches done, summary_done, or error.
func (a *App) Wait(ctx context.Context) (domain.Session, error) {
	for {
		changed := a.Changes()
		session := a.Current()
		if session.Phase.Terminal() {
			return session, nil
		}

		select {
		case <-ctx.Done():
			return session, ctx.Err()
		case <-a.stopped:
			return a.Current(), ErrNotRunning
		case <-changed:
		}
	}
}

// RefreshDiagnostics reruns the preflight checks against the current settings.
func (a *App) RefreshDiagnostics(ctx context.Context) domain.DiagnosticReport {
	if a.checker == nil {
		a.checker = diagnostics.NewChecker()
	}
	a.Diagnostics = a.checker.Run(ctx, a.Settings)
	return a.Diagnostics
}

// rejection explains why the loop did not accept a command.
func (a *App) rejection(op string, session domain.Session) error {
	if err := a.Jobs.CanStartBatch(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w (phase %s)", op, ErrNotAccepted, session.Phase)
}

// publish records an event and wakes everything waiting on Changes.
func (a *App) publish(event jobs.Event) jobs.Event {
	published := a.events.Publish(event)

	a.mu.Lock()
	close(a.changed)
	a.changed = make(chan struct{})
	a.mu.Unlock()

	return published
}

// buildJobs resolves paths into jobs in the given order.
func buildJobs(paths []string) ([]domain.FileJob, error) {
	out := make([]domain.FileJob, 0, len(paths))
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("media file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("media file %s is a directory", abs)
		}
		out = append(out, domain.FileJob{
			DisplayName: filepath.Base(abs),
			SourcePath:  abs,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoFiles
	}
	return out, nil
}
