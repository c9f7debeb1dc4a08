package config

import (
	"os"
	"path/filepath"

	"video-transcriber/internal/artifacts"
	"video-transcriber/internal/domain"
)

const (
	defaultServerURL      = "http://127.0.0.1:5000"
	defaultChannelPath    = "/ws"
	defaultUploadTimeout  = 1800
	defaultSummaryTimeout = 300
	defaultWatchdog       = 900
	defaultWatchSettle    = 2000
	defaultLogLevel       = "info"
	defaultNotifyTimeout  = 10
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ServerURL:             defaultServerURL,
		ChannelURL:            "ws://127.0.0.1:5000" + defaultChannelPath,
		OutputDir:             filepath.Join(homeDir, "Documents", "Transcripts"),
		TranscriptSuffix:      artifacts.DefaultSuffix,
		UploadTimeoutSeconds:  defaultUploadTimeout,
		SummaryTimeoutSeconds: defaultSummaryTimeout,
		WatchdogSeconds:       defaultWatchdog,
		WatchSettleMillis:     defaultWatchSettle,
		LogLevel:              defaultLogLevel,
		Notifications: domain.Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeout,
		},
	}
}
