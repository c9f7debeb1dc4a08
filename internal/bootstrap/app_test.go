package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"video-transcriber/internal/artifacts"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/jobs"
	"video-transcriber/internal/transcribe"
)

// fakeUploader returns /srv/<name> unless a failure is configured for the file.
type fakeUploader struct {
	mu    sync.Mutex
	fail  map[string]error
	block chan struct{}
	calls []string
}

// Upload records the call and optionally waits for the test to release it.
func (u *fakeUploader) Upload(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)
	u.mu.Lock()
	u.calls = append(u.calls, name)
	err := u.fail[name]
	block := u.block
	u.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "/srv/" + name, nil
}

func (u *fakeUploader) Calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.calls)
}

// fakeChannel lets tests push events and observe start signals.
type fakeChannel struct {
	events  chan transcribe.ChannelEvent
	started chan string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		events:  make(chan transcribe.ChannelEvent, 16),
		started: make(chan string, 16),
	}
}

func (c *fakeChannel) Events() <-chan transcribe.ChannelEvent { return c.events }

func (c *fakeChannel) StartTranscription(_ context.Context, serverPath string) error {
	c.started <- serverPath
	return nil
}

func (c *fakeChannel) Close() error { return nil }

// fakeSummarizer returns a fixed document and records the request.
type fakeSummarizer struct {
	mu      sync.Mutex
	request transcribe.SummaryRequest
	result  transcribe.SummaryResult
	err     error
}

func (s *fakeSummarizer) Summarize(_ context.Context, request transcribe.SummaryRequest) (transcribe.SummaryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.request = request
	return s.result, s.err
}

// recordingNotifier keeps every notification raised.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, title+": "+message)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.messages)
}

type harness struct {
	app        *App
	uploader   *fakeUploader
	summarizer *fakeSummarizer
	notifier   *recordingNotifier
	channels   []*fakeChannel
	dials      atomic.Int32
	timers     atomic.Int32
	ticks      chan time.Time
	watchdog   chan time.Time
	outDir     string
	cancel     context.CancelFunc
	done       chan error
}

func newHarness(t *testing.T, mutate func(*domain.Settings)) *harness {
	t.Helper()
	settings := domain.Settings{
		ServerURL:        "http://127.0.0.1:5000",
		ChannelURL:       "ws://127.0.0.1:5000/ws",
		OutputDir:        filepath.Join(t.TempDir(), "out"),
		TranscriptSuffix: artifacts.DefaultSuffix,
	}
	if mutate != nil {
		mutate(&settings)
	}

	h := &harness{
		uploader:   &fakeUploader{fail: map[string]error{}},
		summarizer: &fakeSummarizer{},
		notifier:   &recordingNotifier{},
		channels:   []*fakeChannel{newFakeChannel(), newFakeChannel()},
		ticks:      make(chan time.Time),
		watchdog:   make(chan time.Time),
		outDir:     settings.OutputDir,
		done:       make(chan error, 1),
	}

	var ids atomic.Int32
	h.app = New(settings, Deps{
		Uploader:   h.uploader,
		Summarizer: h.summarizer,
		DialChannel: func(context.Context) (ProgressChannel, error) {
			n := int(h.dials.Add(1))
			if n > len(h.channels) {
				return nil, errors.New("no more channels")
			}
			return h.channels[n-1], nil
		},
		Notifier: h.notifier,
		Logger:   zerolog.Nop(),
		NewTicker: func(time.Duration) (<-chan time.Time, func()) {
			return h.ticks, func() {}
		},
		NewTimer: func(time.Duration) (<-chan time.Time, func()) {
			h.timers.Add(1)
			return h.watchdog, func() {}
		},
		NewID:       func() string { return fmt.Sprintf("batch-%d", ids.Add(1)) },
		RedialDelay: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.app.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func mediaFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("media:"+name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return paths
}

func waitStarted(t *testing.T, channel *fakeChannel) string {
	t.Helper()
	select {
	case path := <-channel.started:
		return path
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for start signal")
		return ""
	}
}

func sendTime(t *testing.T, ch chan time.Time) {
	t.Helper()
	select {
	case ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out: timer not armed")
	}
}

func waitFinal(t *testing.T, app *App) domain.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	session, err := app.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v (phase %s)", err, session.Phase)
	}
	return session
}

// waitFor polls until the session satisfies cond or times out.
func waitFor(t *testing.T, app *App, desc string, cond func(domain.Session) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(app.Current()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; session = %+v", desc, app.Current())
}

func waitFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("file never written: %s", path)
	return ""
}

// TestAppSingleFileFlow drives one file through upload, progress, countdown and save.
func TestAppSingleFileFlow(t *testing.T) {
	h := newHarness(t, nil)
	channel := h.channels[0]

	if _, err := h.app.Transcribe(mediaFiles(t, "lecture.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got := waitStarted(t, channel); got != "/srv/lecture.mp4" {
		t.Fatalf("start path = %q", got)
	}

	channel.events <- transcribe.ChannelEvent{Kind: transcribe.EventProgress, Status: "Transcribing chunk 1/3", Percent: 30, ETA: "42s remaining"}
	waitFor(t, h.app, "eta 42", func(s domain.Session) bool { return s.EtaDisplaySeconds == 42 })

	sendTime(t, h.ticks)
	waitFor(t, h.app, "eta 41", func(s domain.Session) bool { return s.EtaDisplaySeconds == 41 })

	channel.events <- transcribe.ChannelEvent{Kind: transcribe.EventTranscriptionComplete, Transcript: "hello world"}
	final := waitFinal(t, h.app)
	if final.Phase != domain.PhaseDone || final.Transcript != "hello world" || final.ProgressPercent != 100 {
		t.Fatalf("final = %+v", final)
	}

	if entries, _ := os.ReadDir(h.outDir); len(entries) != 0 {
		t.Fatalf("single-file mode wrote %d files before save", len(entries))
	}
	path, err := h.app.SaveTranscript()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "lecture-transcript.txt" || waitFile(t, path) != "hello world" {
		t.Fatalf("saved %s", path)
	}

	events := h.app.Updates(0)
	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeArtifact)
}

// TestAppBatchPersistsInOrder checks every artifact is written and published in order.
func TestAppBatchPersistsInOrder(t *testing.T) {
	h := newHarness(t, nil)
	channel := h.channels[0]

	if _, err := h.app.Transcribe(mediaFiles(t, "a.mp4", "b.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		waitStarted(t, channel)
		channel.events <- transcribe.ChannelEvent{Kind: transcribe.EventTranscriptionComplete, Transcript: "text " + name}
	}

	final := waitFinal(t, h.app)
	if final.Phase != domain.PhaseDone || final.CurrentIndex != 2 {
		t.Fatalf("final = %+v", final)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.app.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		data, err := os.ReadFile(filepath.Join(h.outDir, name+"-transcript.txt"))
		if err != nil || string(data) != "text "+name {
			t.Fatalf("%s content = %q, err = %v", name, data, err)
		}
	}

	var saved []string
	for _, event := range h.app.Updates(0) {
		if event.Type == jobs.EventTypeArtifact {
			saved = append(saved, event.File)
		}
	}
	if !slices.Equal(saved, []string{"a.mp4", "b.mp4"}) {
		t.Fatalf("artifact events = %v", saved)
	}
}

// TestAppBatchStopsAtFailure checks earlier artifacts survive and the batch halts.
func TestAppBatchStopsAtFailure(t *testing.T) {
	h := newHarness(t, nil)
	channel := h.channels[0]

	if _, err := h.app.Transcribe(mediaFiles(t, "a.mp4", "b.mp4", "c.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	waitStarted(t, channel)
	channel.events <- transcribe.ChannelEvent{Kind: transcribe.EventTranscriptionComplete, Transcript: "first"}
	waitStarted(t, channel)
	channel.events <- transcribe.ChannelEvent{Kind: transcribe.EventTranscriptionError, Error: "decode failed"}

	final := waitFinal(t, h.app)
	if final.Phase != domain.PhaseError || final.CurrentIndex != 1 {
		t.Fatalf("final = %+v", final)
	}
	if final.StatusMessage != "Error: decode failed" {
		t.Fatalf("status = %q", final.StatusMessage)
	}
	if waitFile(t, filepath.Join(h.outDir, "a-transcript.txt")) != "first" {
		t.Fatal("first artifact missing")
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "b-transcript.txt")); !os.IsNotExist(err) {
		t.Fatalf("b artifact stat err = %v, want not exist", err)
	}
	if calls := h.uploader.Calls(); !slices.Equal(calls, []string{"a.mp4", "b.mp4"}) {
		t.Fatalf("upload calls = %v", calls)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(h.notifier.Messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	messages := h.notifier.Messages()
	if len(messages) != 1 || !strings.Contains(messages[0], "b.mp4") {
		t.Fatalf("notifications = %v", messages)
	}

	if _, err := h.app.Start(); !errors.Is(err, jobs.ErrSessionFailed) {
		t.Fatalf("start after error = %v, want %v", err, jobs.ErrSessionFailed)
	}
}

// TestAppUploadFailure checks a synchronous upload error ends the job immediately.
func TestAppUploadFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.uploader.fail["a.mp4"] = &transcribe.RemoteError{Kind: domain.ErrorKindUpload, StatusCode: 400, Message: "No file part"}

	if _, err := h.app.Transcribe(mediaFiles(t, "a.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	final := waitFinal(t, h.app)
	if final.Error == nil || final.Error.Kind != domain.ErrorKindUpload {
		t.Fatalf("final = %+v", final)
	}
	if final.StatusMessage != "Error processing a.mp4: No file part" {
		t.Fatalf("status = %q", final.StatusMessage)
	}
	assertEventTypeExists(t, h.app.Updates(0), jobs.EventTypeError)
}

// TestAppRejectsSelectionWhileBusy checks the single in-flight batch guard.
func TestAppRejectsSelectionWhileBusy(t *testing.T) {
	h := newHarness(t, nil)
	h.uploader.block = make(chan struct{})
	defer close(h.uploader.block)

	if _, err := h.app.Transcribe(mediaFiles(t, "a.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if _, err := h.app.Select(mediaFiles(t, "b.mp4")); !errors.Is(err, jobs.ErrSessionBusy) {
		t.Fatalf("select while busy = %v, want %v", err, jobs.ErrSessionBusy)
	}
	if _, err := h.app.Start(); !errors.Is(err, jobs.ErrSessionBusy) {
		t.Fatalf("start while busy = %v, want %v", err, jobs.ErrSessionBusy)
	}
}

// TestAppResetIgnoresLateUpload checks a result from an abandoned batch is dropped.
func TestAppResetIgnoresLateUpload(t *testing.T) {
	h := newHarness(t, nil)
	h.uploader.block = make(chan struct{})

	if _, err := h.app.Transcribe(mediaFiles(t, "a.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	session, err := h.app.Reset()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if session.Phase != domain.PhaseIdle {
		t.Fatalf("phase after reset = %s", session.Phase)
	}

	close(h.uploader.block)
	time.Sleep(50 * time.Millisecond)

	if got := h.app.Current().Phase; got != domain.PhaseIdle {
		t.Fatalf("phase = %s, want idle", got)
	}
	select {
	case path := <-h.channels[0].started:
		t.Fatalf("late upload started transcription of %s", path)
	default:
	}
}

// TestAppWatchdogExpiry checks a silent channel ends the job with a transcription error.
func TestAppWatchdogExpiry(t *testing.T) {
	h := newHarness(t, func(s *domain.Settings) { s.WatchdogSeconds = 5 })

	if _, err := h.app.Transcribe(mediaFiles(t, "a.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	waitStarted(t, h.channels[0])
	sendTime(t, h.watchdog)

	final := waitFinal(t, h.app)
	if final.Error == nil || final.Error.Kind != domain.ErrorKindTranscription || !strings.Contains(final.Error.Message, "5s") {
		t.Fatalf("final = %+v", final)
	}
}

// TestAppWatchdogRearmedByRepeatedEvent checks an event that changes nothing still counts as channel activity.
func TestAppWatchdogRearmedByRepeatedEvent(t *testing.T) {
	h := newHarness(t, func(s *domain.Settings) { s.WatchdogSeconds = 5 })
	channel := h.channels[0]

	if _, err := h.app.Transcribe(mediaFiles(t, "a.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	waitStarted(t, channel)

	progress := transcribe.ChannelEvent{Kind: transcribe.EventProgress, Status: "Transcribing chunk 1/2", Percent: 30}
	channel.events <- progress
	waitFor(t, h.app, "progress 30", func(s domain.Session) bool { return s.ProgressPercent == 30 })
	channel.events <- progress

	// One arm on entering transcribing, then one per channel event.
	const want = 3
	deadline := time.Now().Add(2 * time.Second)
	for h.timers.Load() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.timers.Load(); got != want {
		t.Fatalf("watchdog arms = %d, want %d", got, want)
	}
	if got := h.app.Current().Phase; got != domain.PhaseTranscribing {
		t.Fatalf("phase = %s, want transcribing", got)
	}
}

// TestAppSummaryFlow checks slides upload, summary request and document save.
func TestAppSummaryFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.summarizer.result = transcribe.SummaryResult{Filename: "lecture-summary.docx", Document: []byte("DOC")}
	channel := h.channels[0]

	if _, err := h.app.Transcribe(mediaFiles(t, "lecture.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	waitStarted(t, channel)
	channel.events <- transcribe.ChannelEvent{Kind: transcribe.EventTranscriptionComplete, Transcript: "hello"}
	waitFinal(t, h.app)

	slides := mediaFiles(t, "slides.pdf")[0]
	if _, err := h.app.Summarize(slides, ""); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	final := waitFinal(t, h.app)
	if final.Phase != domain.PhaseSummaryDone {
		t.Fatalf("final = %+v", final)
	}
	if waitFile(t, final.SummaryFile) != "DOC" || filepath.Base(final.SummaryFile) != "lecture-summary.docx" {
		t.Fatalf("summary file = %s", final.SummaryFile)
	}

	h.summarizer.mu.Lock()
	request := h.summarizer.request
	h.summarizer.mu.Unlock()
	if request.Transcript != "hello" || request.SlidesRef != "/srv/slides.pdf" || request.OutputName != "lecture-summary" {
		t.Fatalf("request = %+v", request)
	}
}

// TestAppChannelLossFailsJobAndRedials checks a dropped channel errors the job and reconnects.
func TestAppChannelLossFailsJobAndRedials(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.app.Transcribe(mediaFiles(t, "a.mp4")); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	waitStarted(t, h.channels[0])
	close(h.channels[0].events)

	final := waitFinal(t, h.app)
	if final.Error == nil || final.Error.Message != transcribe.ErrChannelClosed.Error() {
		t.Fatalf("final = %+v", final)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.dials.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.dials.Load() != 2 {
		t.Fatalf("dials = %d, want 2", h.dials.Load())
	}

	if err := retryTranscribe(h.app, mediaFiles(t, "b.mp4")); err != nil {
		t.Fatalf("transcribe after redial: %v", err)
	}
	if got := waitStarted(t, h.channels[1]); got != "/srv/b.mp4" {
		t.Fatalf("start path = %q", got)
	}
}

// retryTranscribe resets and starts paths, tolerating the loop attaching the new channel.
func retryTranscribe(app *App, paths []string) error {
	if _, err := app.Reset(); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	_, err := app.Transcribe(paths)
	return err
}

// TestTranscribeBatchResetsAfterTerminal checks the watch handler clears a finished session.
func TestTranscribeBatchResetsAfterTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.uploader.fail["bad.mp4"] = errors.New("refused")

	if err := h.app.TranscribeBatch(context.Background(), mediaFiles(t, "bad.mp4")); err == nil {
		t.Fatal("expected failed batch error")
	}

	done := make(chan error, 1)
	go func() { done <- h.app.TranscribeBatch(context.Background(), mediaFiles(t, "good.mp4")) }()
	waitStarted(t, h.channels[0])
	h.channels[0].events <- transcribe.ChannelEvent{Kind: transcribe.EventTranscriptionComplete, Transcript: "ok"}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second batch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second batch never finished")
	}
}

// TestAppCommandsAfterStop checks commands fail fast once the loop exits.
func TestAppCommandsAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	paths := mediaFiles(t, "a.mp4")
	h.cancel()
	waitDone := time.After(2 * time.Second)
	for {
		if _, err := h.app.Select(paths); errors.Is(err, ErrNotRunning) {
			return
		}
		select {
		case <-waitDone:
			t.Fatal("select never reported ErrNotRunning")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestSaveTranscriptRequiresSingleTranscript(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.app.SaveTranscript(); !errors.Is(err, ErrNothingToSave) {
		t.Fatalf("err = %v, want %v", err, ErrNothingToSave)
	}
	if _, err := h.app.Select(nil); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("err = %v, want %v", err, ErrNoFiles)
	}
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}
