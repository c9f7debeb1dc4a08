package diagnostics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"video-transcriber/internal/domain"
)

const probeTimeout = 5 * time.Second

// Checker validates the worker service endpoints and the output directory.
type Checker struct {
	probe      func(ctx context.Context, url string) (int, error)
	dial       func(ctx context.Context, url string) error
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real network and OS dependencies.
func NewChecker() *Checker {
	client := &http.Client{Timeout: probeTimeout}
	return &Checker{
		probe: func(ctx context.Context, target string) (int, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return 0, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return 0, err
			}
			_ = resp.Body.Close()
			return resp.StatusCode, nil
		},
		dial: func(ctx context.Context, target string) error {
			dialer := websocket.Dialer{HandshakeTimeout: probeTimeout}
			conn, resp, err := dialer.DialContext(ctx, target, nil)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err != nil {
				return err
			}
			return conn.Close()
		},
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all preflight checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkServer(ctx, settings.ServerURL),
		c.checkChannel(ctx, settings.ChannelURL),
		c.checkOutputDir(settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkServer verifies the HTTP API answers at all.
func (c *Checker) checkServer(ctx context.Context, serverURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:     "server",
		Name:   "Worker service",
		Target: serverURL,
	}

	parsed, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Server URL is not a valid http(s) URL."
		item.Hint = "Set server_url, for example http://127.0.0.1:5000."
		return item
	}

	status, err := c.probe(ctx, parsed.String())
	switch {
	case err != nil:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot reach %s", parsed.Host)
		item.Hint = "Start the transcription service or correct server_url."
	case status >= http.StatusInternalServerError:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Service answered with HTTP %d", status)
		item.Hint = "Check the service logs; uploads may fail."
	default:
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Reachable (HTTP %d)", status)
	}
	return item
}

// checkChannel validates the push channel URL and completes one handshake.
func (c *Checker) checkChannel(ctx context.Context, channelURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:     "channel",
		Name:   "Progress channel",
		Target: channelURL,
	}

	parsed, err := url.Parse(strings.TrimSpace(channelURL))
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") || parsed.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Channel URL must use ws:// or wss://."
		item.Hint = "Set channel_url, or leave it empty to derive it from server_url."
		return item
	}

	if err := c.dial(ctx, parsed.String()); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Handshake failed: %v", err)
		item.Hint = "Progress updates need the websocket endpoint of the service."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Handshake succeeded"
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:     "output_dir",
		Name:   "Output directory",
		Target: outputDir,
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where transcript files can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for transcript export."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	probe func(context.Context, string) (int, error),
	dial func(context.Context, string) error,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		probe:      probe,
		dial:       dial,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
