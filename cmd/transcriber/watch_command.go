package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"video-transcriber/internal/config"
	"video-transcriber/internal/watcher"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch DIR",
		Short: "Transcribe media files as they appear in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			if info, err := os.Stat(dir); err != nil {
				return fmt.Errorf("watch directory: %w", err)
			} else if !info.IsDir() {
				return fmt.Errorf("watch directory %s is not a directory", dir)
			}

			app, err := ctx.openApp(cmd)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			loopDone := startApp(runCtx, app)

			logger := ctx.logger
			handler := func(batchCtx context.Context, paths []string) error {
				logger.Info().Int("files", len(paths)).Msg("starting batch")
				if err := app.TranscribeBatch(batchCtx, paths); err != nil {
					return err
				}
				logger.Info().Int("files", len(paths)).Str("output_dir", app.Settings.OutputDir).Msg("batch finished")
				return nil
			}

			w, err := watcher.New(dir, config.WatchSettle(app.Settings), handler, logger)
			if err != nil {
				return err
			}
			defer w.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s; transcripts go to %s\n", dir, app.Settings.OutputDir)

			watchDone := make(chan error, 1)
			go func() { watchDone <- w.Start(runCtx) }()

			select {
			case err := <-loopDone:
				cancel()
				<-watchDone
				return err
			case err := <-watchDone:
				cancel()
				<-loopDone
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		},
	}
}
