package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"video-transcriber/internal/bootstrap"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/jobs"
)

// progressView renders session updates as a bar on terminals and as plain
// status lines everywhere else.
type progressView struct {
	out  io.Writer
	bar  *progressbar.ProgressBar
	last string
}

func newProgressView(out io.Writer) *progressView {
	v := &progressView{out: out}
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		v.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	}
	return v
}

// describe is the one-line status shown next to the bar.
func describe(s domain.Session) string {
	line := s.StatusMessage
	if eta := jobs.EtaLine(s); eta != "" {
		line += " | " + eta
	}
	return line
}

func (v *progressView) Update(s domain.Session) {
	line := describe(s)
	if v.bar != nil {
		v.bar.Describe(line)
		_ = v.bar.Set(s.ProgressPercent)
		return
	}
	if line == v.last {
		return
	}
	v.last = line
	fmt.Fprintf(v.out, "[%3d%%] %s\n", s.ProgressPercent, line)
}

func (v *progressView) Finish() {
	if v.bar != nil {
		_ = v.bar.Finish()
	}
}

// follow renders updates until the session reaches a terminal phase.
func follow(ctx context.Context, app *bootstrap.App, loopDone <-chan error, view *progressView) (domain.Session, error) {
	defer view.Finish()
	for {
		changed := app.Changes()
		session := app.Current()
		view.Update(session)
		if session.Phase.Terminal() {
			return session, nil
		}

		select {
		case <-ctx.Done():
			return session, ctx.Err()
		case err := <-loopDone:
			if err == nil {
				err = bootstrap.ErrNotRunning
			}
			return app.Current(), err
		case <-changed:
		}
	}
}
