package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video-transcriber/internal/artifacts"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/jobs"
	"video-transcriber/internal/transcribe"
)

const (
	startSignalTimeout = 10 * time.Second
	maxRedialDelay     = 30 * time.Second
)

// message is one inbox entry: an action to reduce, or a freshly dialed channel.
type message struct {
	action  jobs.Action
	reply   chan<- outcome
	channel ProgressChannel
}

type outcome struct {
	session  domain.Session
	accepted bool
}

// persistRequest is one artifact to save, or a flush marker when flushed is set.
type persistRequest struct {
	batchID string
	effect  jobs.PersistArtifact
	flushed chan struct{}
}

// loop holds state owned by the Run goroutine only.
type loop struct {
	app *App
	ctx context.Context

	channel       ProgressChannel
	channelEvents <-chan transcribe.ChannelEvent

	tickC    <-chan time.Time
	stopTick func()

	watchdogC    <-chan time.Time
	stopWatchdog func()
}

// Run connects the push channel and processes the inbox until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("event loop already started")
	}
	defer close(a.stopped)

	if a.dialChannel == nil {
		return errors.New("no progress channel configured")
	}
	channel, err := a.dialChannel(ctx)
	if err != nil {
		return fmt.Errorf("connect progress channel: %w", err)
	}

	l := &loop{app: a, ctx: ctx}
	l.attach(channel)

	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		a.persistWorker(ctx)
	}()

	defer func() {
		l.stopTicker()
		l.disarmWatchdog()
		if l.channel != nil {
			_ = l.channel.Close()
		}
		<-persistDone
	}()

	a.logger.Info().Str("server", a.Settings.ServerURL).Msg("event loop started")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("event loop stopped")
			return ctx.Err()

		case msg := <-a.inbox:
			if msg.channel != nil {
				l.attach(msg.channel)
				continue
			}
			l.dispatch(msg.action, false, msg.reply)

		case event, ok := <-l.channelEvents:
			if !ok {
				l.channelLost()
				continue
			}
			if action := actionForEvent(event); action != nil {
				l.dispatch(action, true, nil)
			}

		case <-l.tickC:
			l.dispatch(jobs.Tick{}, false, nil)

		case <-l.watchdogC:
			l.watchdogC = nil
			l.dispatch(jobs.WatchdogExpired{Seconds: a.Settings.WatchdogSeconds}, false, nil)
		}
	}
}

// call sends an action through the loop and waits for its outcome.
func (a *App) call(action jobs.Action) (domain.Session, bool, error) {
	reply := make(chan outcome, 1)
	select {
	case a.inbox <- message{action: action, reply: reply}:
	case <-a.stopped:
		return a.Current(), false, ErrNotRunning
	}

	select {
	case out := <-reply:
		return out.session, out.accepted, nil
	case <-a.stopped:
		return a.Current(), false, ErrNotRunning
	}
}

// post queues an action from an I/O goroutine.
func (a *App) post(ctx context.Context, action jobs.Action) {
	select {
	case a.inbox <- message{action: action}:
	case <-ctx.Done():
	}
}

// dispatch reduces one action and executes the resulting effects.
func (l *loop) dispatch(action jobs.Action, fromChannel bool, reply chan<- outcome) {
	a := l.app
	name := jobs.ActionName(action)

	prevPhase := a.Jobs.Current().Phase
	next, effects, accepted := a.Jobs.Apply(action)
	if !accepted {
		if fromChannel && next.Phase == domain.PhaseTranscribing {
			l.armWatchdog()
		}
		a.logger.Debug().Str("action", name).Str("phase", string(next.Phase)).Msg("action ignored")
		if reply != nil {
			reply <- outcome{session: next, accepted: false}
		}
		return
	}

	if _, isTick := action.(jobs.Tick); !isTick {
		a.logger.Debug().
			Str("action", name).
			Str("from", string(prevPhase)).
			Str("to", string(next.Phase)).
			Int("index", next.CurrentIndex).
			Int("progress", next.ProgressPercent).
			Msg("action applied")
	}

	a.publish(jobs.StatusEvent(next, name))
	if next.Phase == domain.PhaseError && prevPhase != domain.PhaseError && next.Error != nil {
		a.logger.Warn().
			Str("kind", string(next.Error.Kind)).
			Str("file", next.Error.File).
			Msg(next.Error.Message)
		a.publish(jobs.Event{
			BatchID: next.BatchID,
			Type:    jobs.EventTypeError,
			Phase:   next.Phase,
			Index:   next.CurrentIndex,
			Total:   len(next.Jobs),
			File:    next.Error.File,
			Message: next.Error.Message,
		})
	}

	for _, effect := range effects {
		l.execute(next, effect)
	}
	l.syncWatchdog(prevPhase, next.Phase, fromChannel)

	if reply != nil {
		reply <- outcome{session: next, accepted: true}
	}
}

// execute performs one effect without blocking the loop on I/O.
func (l *loop) execute(session domain.Session, effect jobs.Effect) {
	a := l.app
	switch e := effect.(type) {
	case jobs.DispatchUpload:
		go l.upload(e)
	case jobs.StartTranscription:
		l.startTranscription(e)
	case jobs.PersistArtifact:
		a.enqueuePersist(persistRequest{batchID: session.BatchID, effect: e})
	case jobs.Notify:
		go a.raise(l.ctx, e.Title, e.Message)
	case jobs.ArmTicker:
		l.armTicker()
	case jobs.StopTicker:
		l.stopTicker()
	case jobs.RequestSummary:
		go l.summarize(e)
	default:
		a.logger.Warn().Str("effect", jobs.EffectName(effect)).Msg("unhandled effect")
	}
}

func (l *loop) upload(e jobs.DispatchUpload) {
	a := l.app
	serverPath, err := a.uploader.Upload(l.ctx, e.Job.SourcePath)
	if err != nil {
		a.logger.Warn().Err(err).Str("file", e.Job.DisplayName).Msg("upload failed")
		a.post(l.ctx, jobs.UploadFailed{BatchID: e.BatchID, Index: e.Index, Message: transcribe.UserMessage(err)})
		return
	}
	a.post(l.ctx, jobs.UploadSucceeded{BatchID: e.BatchID, Index: e.Index, ServerPath: serverPath})
}

func (l *loop) startTranscription(e jobs.StartTranscription) {
	a := l.app
	channel := l.channel
	if channel == nil {
		go a.post(l.ctx, jobs.JobFailed{Message: transcribe.ErrChannelClosed.Error()})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(l.ctx, startSignalTimeout)
		defer cancel()
		if err := channel.StartTranscription(ctx, e.ServerPath); err != nil {
			a.logger.Warn().Err(err).Msg("start signal failed")
			a.post(l.ctx, jobs.JobFailed{Message: transcribe.UserMessage(err)})
		}
	}()
}

func (l *loop) summarize(e jobs.RequestSummary) {
	a := l.app
	fail := func(err error) {
		a.logger.Warn().Err(err).Msg("summary failed")
		a.post(l.ctx, jobs.SummaryFailed{Message: transcribe.UserMessage(err)})
	}

	if a.summarizer == nil {
		fail(errors.New("summary service is not configured"))
		return
	}

	slidesRef, err := a.uploader.Upload(l.ctx, e.SlidesPath)
	if err != nil {
		fail(err)
		return
	}

	result, err := a.summarizer.Summarize(l.ctx, transcribe.SummaryRequest{
		Transcript: e.Transcript,
		SlidesRef:  slidesRef,
		OutputName: e.OutputName,
	})
	if err != nil {
		fail(err)
		return
	}

	savedPath := ""
	if len(result.Document) > 0 {
		savedPath, err = a.writer.Save(result.Filename, result.Document)
		if err != nil {
			fail(fmt.Errorf("save summary: %w", err))
			return
		}
		a.logger.Info().Str("path", savedPath).Msg("summary saved")
	}
	a.post(l.ctx, jobs.SummaryCompleted{Summary: result.Summary, SavedPath: savedPath})
}

// attach switches the loop to a newly connected channel.
func (l *loop) attach(channel ProgressChannel) {
	if l.channel != nil {
		_ = l.channel.Close()
	}
	l.channel = channel
	l.channelEvents = channel.Events()
	l.app.logger.Debug().Msg("progress channel attached")
}

// channelLost fails any job waiting on the channel and starts redialing.
func (l *loop) channelLost() {
	a := l.app
	if l.channel != nil {
		_ = l.channel.Close()
	}
	l.channel = nil
	l.channelEvents = nil

	a.logger.Warn().Msg("progress channel lost")
	l.dispatch(jobs.JobFailed{Message: transcribe.ErrChannelClosed.Error()}, false, nil)
	go a.redial(l.ctx)
}

// redial reconnects with doubling delays and hands the channel to the loop.
func (a *App) redial(ctx context.Context) {
	delay := a.redialDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		channel, err := a.dialChannel(ctx)
		if err == nil {
			select {
			case a.inbox <- message{channel: channel}:
				a.logger.Info().Msg("progress channel reconnected")
			case <-ctx.Done():
				_ = channel.Close()
			}
			return
		}

		a.logger.Warn().Err(err).Dur("retry_in", delay).Msg("progress channel redial failed")
		delay = min(delay*2, maxRedialDelay)
	}
}

func (l *loop) armTicker() {
	l.stopTicker()
	l.tickC, l.stopTick = l.app.newTicker(time.Second)
}

func (l *loop) stopTicker() {
	if l.stopTick != nil {
		l.stopTick()
	}
	l.tickC = nil
	l.stopTick = nil
}

// syncWatchdog keeps the silent-channel timer armed only while transcribing.
// Any channel event re-arms it, including ones that change nothing.
func (l *loop) syncWatchdog(prev, next domain.Phase, fromChannel bool) {
	switch {
	case next != domain.PhaseTranscribing:
		l.disarmWatchdog()
	case prev != domain.PhaseTranscribing || fromChannel:
		l.armWatchdog()
	}
}

func (l *loop) armWatchdog() {
	seconds := l.app.Settings.WatchdogSeconds
	if seconds <= 0 {
		return
	}
	l.disarmWatchdog()
	l.watchdogC, l.stopWatchdog = l.app.newTimer(time.Duration(seconds) * time.Second)
}

func (l *loop) disarmWatchdog() {
	if l.stopWatchdog != nil {
		l.stopWatchdog()
	}
	l.watchdogC = nil
	l.stopWatchdog = nil
}

// actionForEvent maps an inbound channel event to a reducer action.
func actionForEvent(event transcribe.ChannelEvent) jobs.Action {
	switch event.Kind {
	case transcribe.EventProgress:
		return jobs.ProgressReceived{Status: event.Status, Percent: event.Percent, ETA: event.ETA}
	case transcribe.EventTranscriptionComplete:
		return jobs.JobCompleted{Transcript: event.Transcript}
	case transcribe.EventTranscriptionError:
		return jobs.JobFailed{Message: event.Error}
	case transcribe.EventSummaryComplete:
		return jobs.SummaryCompleted{Summary: event.Summary}
	case transcribe.EventSummaryError:
		return jobs.SummaryFailed{Message: event.Error}
	default:
		return nil
	}
}

// enqueuePersist hands an artifact to the ordered writer goroutine.
func (a *App) enqueuePersist(req persistRequest) {
	select {
	case a.persist <- req:
	default:
		a.logger.Warn().Str("file", req.effect.DisplayName).Msg("persist queue full, writing inline")
		go a.saveArtifact(context.Background(), req)
	}
}

// Flush waits until every artifact queued so far has been saved.
func (a *App) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	select {
	case a.persist <- persistRequest{flushed: flushed}:
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-flushed:
		return nil
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persistWorker writes artifacts in emission order and drains the queue on shutdown.
func (a *App) persistWorker(ctx context.Context) {
	for {
		select {
		case req := <-a.persist:
			a.handlePersist(ctx, req)
		case <-ctx.Done():
			for {
				select {
				case req := <-a.persist:
					a.handlePersist(context.Background(), req)
				default:
					return
				}
			}
		}
	}
}

func (a *App) handlePersist(ctx context.Context, req persistRequest) {
	if req.flushed != nil {
		close(req.flushed)
		return
	}
	a.saveArtifact(ctx, req)
}

func (a *App) saveArtifact(ctx context.Context, req persistRequest) {
	name := artifacts.TranscriptName(req.effect.DisplayName, a.Settings.TranscriptSuffix)
	path, err := a.writer.Save(name, req.effect.Content)
	if err != nil {
		a.logger.Error().Err(err).Str("file", req.effect.DisplayName).Msg("transcript not saved")
		a.publish(jobs.Event{
			BatchID: req.batchID,
			Type:    jobs.EventTypeError,
			File:    req.effect.DisplayName,
			Message: fmt.Sprintf("save transcript for %s: %v", req.effect.DisplayName, err),
		})
		a.raise(ctx, "Transcript not saved", fmt.Sprintf("Could not save the transcript for %s: %v", req.effect.DisplayName, err))
		return
	}

	a.logger.Info().Str("file", req.effect.DisplayName).Str("path", path).Msg("transcript saved")
	a.publish(jobs.Event{
		BatchID: req.batchID,
		Type:    jobs.EventTypeArtifact,
		File:    req.effect.DisplayName,
		Path:    path,
		Message: "Saved " + name,
	})
}

// raise sends a notification and records it in the progress feed.
func (a *App) raise(ctx context.Context, title, msg string) {
	a.publish(jobs.Event{Type: jobs.EventTypeNotice, Message: title + ": " + msg})
	if err := a.notifier.Notify(ctx, title, msg); err != nil {
		a.logger.Warn().Err(err).Msg("notification failed")
	}
}
