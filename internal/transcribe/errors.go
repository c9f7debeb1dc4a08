package transcribe

import (
	"errors"
	"fmt"

	"video-transcriber/internal/domain"
)

// ErrChannelClosed is reported when the push channel ends before the job does.
var ErrChannelClosed = errors.New("connection to transcription service lost")

// RemoteError is a kind-aware error from the worker service with optional HTTP context.
type RemoteError struct {
	Kind       domain.ErrorKind `json:"kind"`
	StatusCode int              `json:"statusCode,omitempty"`
	Message    string           `json:"message"`
	Err        error            `json:"-"`
}

// Error formats remote failures for logs and status text.
func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (status=%d)", e.Kind, e.Message, e.StatusCode)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserMessage returns the text shown in the status line, without the kind prefix.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return err.Error()
}
