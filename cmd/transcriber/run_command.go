package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/spf13/cobra"

	"video-transcriber/internal/domain"
)

var pickerPatterns = []string{"*.mp4", "*.mov", "*.avi", "*.mkv", "*.webm", "*.m4v", "*.flv"}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		pick        bool
		save        bool
		slides      string
		summaryName string
	)

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Transcribe one file or a batch of files",
		Long: "Uploads each file in order and waits for its transcript. With one file the transcript\n" +
			"is held until --save writes it; with several files each transcript is saved as it arrives.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if pick {
				picked, err := pickFiles()
				if err != nil {
					return err
				}
				paths = append(paths, picked...)
			}
			if len(paths) == 0 {
				return errors.New("no files given; pass paths or use --pick")
			}
			if strings.TrimSpace(slides) != "" && len(paths) > 1 {
				return errors.New("--slides needs exactly one file")
			}

			app, err := ctx.openApp(cmd)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			loopDone := startApp(runCtx, app)
			defer func() {
				cancel()
				<-loopDone
			}()

			if _, err := app.Transcribe(paths); err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			session, err := follow(runCtx, app, loopDone, newProgressView(stderr))
			if err != nil {
				return err
			}

			if session.Phase == domain.PhaseDone && !session.Batch {
				if save || strings.TrimSpace(slides) != "" {
					if _, err := app.SaveTranscript(); err != nil {
						return err
					}
				}
				if strings.TrimSpace(slides) != "" {
					if _, err := app.Summarize(slides, summaryName); err != nil {
						return err
					}
					session, err = follow(runCtx, app, loopDone, newProgressView(stderr))
					if err != nil {
						return err
					}
				}
			}

			if err := app.Flush(runCtx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderResults(app.Updates(0), session))
			fmt.Fprintln(out, session.StatusMessage)
			if session.Phase == domain.PhaseDone && !session.Batch && !save && strings.TrimSpace(slides) == "" {
				fmt.Fprintln(out, "Transcript not saved; rerun with --save to write it.")
			}
			if session.Phase == domain.PhaseError {
				return fmt.Errorf("transcription stopped: %s", session.Error.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&pick, "pick", false, "Choose files with the system file picker")
	cmd.Flags().BoolVar(&save, "save", false, "Save a single-file transcript to the output directory")
	cmd.Flags().StringVar(&slides, "slides", "", "Slides file used to generate a summary after transcription")
	cmd.Flags().StringVar(&summaryName, "summary-name", "", "Base name for the summary document")
	return cmd
}

func pickFiles() ([]string, error) {
	selected, err := zenity.SelectFileMultiple(
		zenity.Title("Select video file(s)"),
		zenity.FileFilters{
			{Name: "Video files", Patterns: pickerPatterns},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return nil, errors.New("file selection canceled")
		}
		return nil, fmt.Errorf("file picker: %w", err)
	}
	return selected, nil
}
