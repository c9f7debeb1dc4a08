package bootstrap

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"video-transcriber/internal/config"
	"video-transcriber/internal/domain"
)

// FixDiagnostic applies the local remediation for one failed diagnostic item,
// saves any settings it changed, and reruns the checks.
func (a *App) FixDiagnostic(ctx context.Context, itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings := a.Settings
	var (
		changed bool
		fixErr  error
	)
	switch id {
	case "output_dir":
		settings, changed, fixErr = fixOutputDir(settings)
	case "channel":
		settings, changed, fixErr = fixChannelURL(settings)
	case "server":
		return a.RefreshDiagnostics(ctx), fmt.Errorf("server at %s must be started outside this client", settings.ServerURL)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if changed {
		if a.Store == nil {
			return a.RefreshDiagnostics(ctx), fmt.Errorf("settings store is not configured")
		}
		if err := a.Store.Save(settings); err != nil {
			return a.RefreshDiagnostics(ctx), fmt.Errorf("save settings after fix: %w", err)
		}
		a.Settings = settings
	}

	report := a.RefreshDiagnostics(ctx)
	return report, fixErr
}

func fixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}
	return settings, changed, nil
}

// fixChannelURL points the channel at the path served next to the HTTP API.
func fixChannelURL(settings domain.Settings) (domain.Settings, bool, error) {
	server, err := url.Parse(strings.TrimSpace(settings.ServerURL))
	if err != nil || server.Host == "" {
		return settings, false, fmt.Errorf("server url %q is invalid; fix it before the channel", settings.ServerURL)
	}
	derived := config.ChannelURLFor(server)
	if derived == settings.ChannelURL {
		return settings, false, nil
	}
	settings.ChannelURL = derived
	return settings, true, nil
}
