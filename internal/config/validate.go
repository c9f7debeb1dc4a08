package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-transcriber/internal/artifacts"
	"video-transcriber/internal/domain"
)

// Validate rejects unusable settings and fills zero values with defaults.
func Validate(cfg *domain.Settings) error {
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if cfg.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	server, err := url.Parse(cfg.ServerURL)
	if err != nil || (server.Scheme != "http" && server.Scheme != "https") || server.Host == "" {
		return fmt.Errorf("server_url must be an http or https URL, got %q", cfg.ServerURL)
	}

	cfg.ChannelURL = strings.TrimSpace(cfg.ChannelURL)
	if cfg.ChannelURL == "" {
		cfg.ChannelURL = ChannelURLFor(server)
	}
	channel, err := url.Parse(cfg.ChannelURL)
	if err != nil || (channel.Scheme != "ws" && channel.Scheme != "wss") || channel.Host == "" {
		return fmt.Errorf("channel_url must be a ws or wss URL, got %q", cfg.ChannelURL)
	}

	cfg.OutputDir = expandHome(strings.TrimSpace(cfg.OutputDir))
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultSettings().OutputDir
	}
	if strings.TrimSpace(cfg.TranscriptSuffix) == "" {
		cfg.TranscriptSuffix = artifacts.DefaultSuffix
	}

	for _, field := range []struct {
		name  string
		value int
	}{
		{"upload_timeout_seconds", cfg.UploadTimeoutSeconds},
		{"summary_timeout_seconds", cfg.SummaryTimeoutSeconds},
		{"watchdog_seconds", cfg.WatchdogSeconds},
		{"watch_settle_millis", cfg.WatchSettleMillis},
		{"notifications.request_timeout_seconds", cfg.Notifications.RequestTimeoutSeconds},
	} {
		if field.value < 0 {
			return fmt.Errorf("%s must not be negative", field.name)
		}
	}

	if cfg.UploadTimeoutSeconds == 0 {
		cfg.UploadTimeoutSeconds = defaultUploadTimeout
	}
	if cfg.SummaryTimeoutSeconds == 0 {
		cfg.SummaryTimeoutSeconds = defaultSummaryTimeout
	}
	if cfg.WatchSettleMillis == 0 {
		cfg.WatchSettleMillis = defaultWatchSettle
	}
	if cfg.Notifications.RequestTimeoutSeconds == 0 {
		cfg.Notifications.RequestTimeoutSeconds = defaultNotifyTimeout
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	return nil
}

// ChannelURLFor derives the push channel URL served next to the HTTP API.
func ChannelURLFor(server *url.URL) string {
	channel := *server
	channel.Scheme = "ws"
	if server.Scheme == "https" {
		channel.Scheme = "wss"
	}
	channel.Path = strings.TrimRight(server.Path, "/") + defaultChannelPath
	channel.RawQuery = ""
	return channel.String()
}

// UploadTimeout returns the upload deadline as a duration.
func UploadTimeout(cfg domain.Settings) time.Duration {
	return time.Duration(cfg.UploadTimeoutSeconds) * time.Second
}

// SummaryTimeout returns the summary request deadline as a duration.
func SummaryTimeout(cfg domain.Settings) time.Duration {
	return time.Duration(cfg.SummaryTimeoutSeconds) * time.Second
}

// Watchdog returns the silent-channel limit; zero disables it.
func Watchdog(cfg domain.Settings) time.Duration {
	return time.Duration(cfg.WatchdogSeconds) * time.Second
}

// WatchSettle returns the folder watch settle window.
func WatchSettle(cfg domain.Settings) time.Duration {
	return time.Duration(cfg.WatchSettleMillis) * time.Millisecond
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
