package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"video-transcriber/internal/bootstrap"
	"video-transcriber/internal/config"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	logger zerolog.Logger

	settingsOnce sync.Once
	store        config.Store
	settings     domain.Settings
	settingsErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		logger:       zerolog.Nop(),
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	return config.DefaultPath()
}

func (c *commandContext) ensureSettings() (domain.Settings, error) {
	c.settingsOnce.Do(func() {
		c.store = config.NewStore(c.configPath())
		settings, err := c.store.Load()
		if err != nil {
			c.settingsErr = fmt.Errorf("load config: %w", err)
			return
		}
		if err := config.Validate(&settings); err != nil {
			c.settingsErr = fmt.Errorf("invalid config %s: %w", c.store.Path(), err)
			return
		}
		c.settings = settings
	})
	return c.settings, c.settingsErr
}

// initLogging prefers --log-level over the configured level.
func (c *commandContext) initLogging(w io.Writer, configured string) {
	level := configured
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		level = *c.logLevelFlag
	}
	c.logger = logging.Init(level, w)
}

func (c *commandContext) openApp(cmd *cobra.Command) (*bootstrap.App, error) {
	if _, err := c.ensureSettings(); err != nil {
		return nil, err
	}
	return bootstrap.Open(c.store, c.logger, cmd.ErrOrStderr())
}

// startApp runs the event loop in the background. The returned channel
// yields the loop's exit error and is then closed.
func startApp(ctx context.Context, app *bootstrap.App) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := app.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		done <- err
		close(done)
	}()
	return done
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
