package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"video-transcriber/internal/domain"
)

// EventKind names inbound push-channel events.
type EventKind string

const (
	EventProgress              EventKind = "progress_update"
	EventTranscriptionComplete EventKind = "transcription_complete"
	EventTranscriptionError    EventKind = "transcription_error"
	EventSummaryComplete       EventKind = "summary_complete"
	EventSummaryError          EventKind = "summary_error"

	eventStartTranscription = "start_transcription"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGrace       = time.Second
	eventBuffer      = 64
)

// ChannelEvent is one decoded inbound event.
type ChannelEvent struct {
	Kind       EventKind
	Status     string
	Percent    int
	ETA        string
	Transcript string
	Summary    string
	Error      string
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type eventPayload struct {
	Status     string          `json:"status"`
	Progress   float64         `json:"progress"`
	ETA        json.RawMessage `json:"eta"`
	Transcript string          `json:"transcript"`
	Summary    string          `json:"summary"`
	Error      string          `json:"error"`
}

// Channel is a websocket push channel carrying JSON envelopes.
type Channel struct {
	conn      *websocket.Conn
	logger    zerolog.Logger
	events    chan ChannelEvent
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialChannel connects to the push channel and starts delivering events.
func DialChannel(ctx context.Context, url string, logger zerolog.Logger) (*Channel, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	header.Set("User-Agent", userAgent)

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		return nil, &RemoteError{
			Kind:       domain.ErrorKindTranscription,
			StatusCode: statusCode,
			Message:    "connect to progress channel",
			Err:        err,
		}
	}

	c := &Channel{
		conn:   conn,
		logger: logger.With().Str("component", "channel").Logger(),
		events: make(chan ChannelEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns decoded inbound events. It is closed when the connection ends.
func (c *Channel) Events() <-chan ChannelEvent {
	return c.events
}

// StartTranscription sends the one-way start signal for a server-side path.
func (c *Channel) StartTranscription(ctx context.Context, serverPath string) error {
	data, err := json.Marshal(map[string]string{"video_path": serverPath})
	if err != nil {
		return fmt.Errorf("encode start signal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(envelope{Event: eventStartTranscription, Data: data}); err != nil {
		return &RemoteError{Kind: domain.ErrorKindTranscription, Message: "send start signal", Err: err}
	}
	return nil
}

// Close sends a close frame and tears the connection down. It is safe to call twice.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				c.logger.Debug().Msg("channel closed")
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info().Msg("channel closed by server")
				} else {
					c.logger.Warn().Err(err).Msg("channel read failed")
				}
			}
			return
		}

		event, err := decodeEvent(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping channel message")
			continue
		}

		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

var errUnknownEvent = errors.New("unknown event")

// decodeEvent parses one envelope into a ChannelEvent.
func decodeEvent(data []byte) (ChannelEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ChannelEvent{}, fmt.Errorf("decode envelope: %w", err)
	}

	kind := EventKind(strings.TrimSpace(env.Event))
	switch kind {
	case EventProgress, EventTranscriptionComplete, EventTranscriptionError, EventSummaryComplete, EventSummaryError:
	default:
		return ChannelEvent{}, fmt.Errorf("%w %q", errUnknownEvent, env.Event)
	}

	var payload eventPayload
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return ChannelEvent{}, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}

	return ChannelEvent{
		Kind:       kind,
		Status:     payload.Status,
		Percent:    int(min(max(payload.Progress, 0), 100)),
		ETA:        decodeETA(payload.ETA),
		Transcript: payload.Transcript,
		Summary:    payload.Summary,
		Error:      payload.Error,
	}, nil
}

// decodeETA accepts "42s remaining" or a bare number of seconds.
func decodeETA(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return strconv.FormatFloat(seconds, 'f', -1, 64)
	}
	return ""
}
