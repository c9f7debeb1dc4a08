package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ncruces/zenity"

	"video-transcriber/internal/domain"
)

const userAgent = "video-transcriber/0.1"

// Notifier raises one interruptive notification.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// New builds the notifier chain from settings. The console banner is always included.
func New(cfg domain.Notifications, console io.Writer) Notifier {
	chain := Multi{NewConsole(console)}
	if cfg.Dialog {
		chain = append(chain, NewDialog())
	}
	if topic := strings.TrimSpace(cfg.NtfyTopic); topic != "" {
		timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		chain = append(chain, NewNtfy(topic, timeout))
	}
	return chain
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

// Notify calls each notifier in order.
func (m Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Console prints a banner to a writer.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console notifier; a nil writer discards output.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = io.Discard
	}
	return &Console{w: w}
}

// Notify writes "!! title: message" on its own line.
func (c *Console) Notify(_ context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.w, "\n!! %s: %s\n", strings.TrimSpace(title), strings.TrimSpace(message))
	return err
}

// Dialog shows a native error dialog and blocks until it is dismissed.
type Dialog struct {
	show func(text string, options ...zenity.Option) error
}

// NewDialog creates a dialog notifier backed by zenity.
func NewDialog() *Dialog {
	return &Dialog{show: zenity.Error}
}

// Notify opens the dialog. Dismissing it is not an error.
func (d *Dialog) Notify(_ context.Context, title, message string) error {
	err := d.show(message, zenity.Title(title))
	if err != nil && !errors.Is(err, zenity.ErrCanceled) {
		return fmt.Errorf("show dialog: %w", err)
	}
	return nil
}

// Ntfy posts notifications to an ntfy topic URL.
type Ntfy struct {
	endpoint string
	client   *http.Client
}

// NewNtfy creates an ntfy notifier for a full topic URL.
func NewNtfy(endpoint string, timeout time.Duration) *Ntfy {
	return &Ntfy{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Notify posts message as the body with the title and tags as headers.
func (n *Ntfy) Notify(ctx context.Context, title, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if title != "" {
		req.Header.Set("Title", title)
	}
	req.Header.Set("Tags", "transcriber,warning")
	req.Header.Set("Priority", "high")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
