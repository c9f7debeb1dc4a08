package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"video-transcriber/internal/domain"
)

const (
	userAgent           = "video-transcriber/0.1"
	uploadFailedMessage = "File upload failed."
	maxErrorBody        = 4096
)

// UploadClient transfers local media to the worker service.
type UploadClient struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
	open     func(name string) (*os.File, error)
}

// NewUploadClient builds an upload client for {serverURL}/upload.
func NewUploadClient(serverURL string, timeout time.Duration, logger zerolog.Logger) *UploadClient {
	return &UploadClient{
		endpoint: strings.TrimRight(serverURL, "/") + "/upload",
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "upload").Logger(),
		open:     os.Open,
	}
}

type uploadResponse struct {
	VideoPath string `json:"video_path"`
	Error     string `json:"error"`
}

// Upload streams path as the multipart "file" part and returns the server-side path.
func (c *UploadClient) Upload(ctx context.Context, path string) (string, error) {
	file, err := c.open(path)
	if err != nil {
		return "", &RemoteError{Kind: domain.ErrorKindUpload, Message: fmt.Sprintf("open %s: %v", filepath.Base(path), err), Err: err}
	}
	defer file.Close()

	if info, statErr := file.Stat(); statErr == nil {
		c.logger.Info().
			Str("file", filepath.Base(path)).
			Str("size", humanize.Bytes(uint64(info.Size()))).
			Msg("uploading media")
	}

	body, contentType := streamMultipart(file, filepath.Base(path))
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", &RemoteError{Kind: domain.ErrorKindUpload, Message: "build upload request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &RemoteError{Kind: domain.ErrorKindUpload, Message: uploadFailedMessage, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", &RemoteError{Kind: domain.ErrorKindUpload, StatusCode: resp.StatusCode, Message: uploadFailedMessage, Err: err}
	}

	var decoded uploadResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(decoded.Error)
		if msg == "" {
			msg = uploadFailedMessage
		}
		return "", &RemoteError{Kind: domain.ErrorKindUpload, StatusCode: resp.StatusCode, Message: msg}
	}

	serverPath := strings.TrimSpace(decoded.VideoPath)
	if serverPath == "" {
		msg := strings.TrimSpace(decoded.Error)
		if msg == "" {
			msg = "upload response did not include a server path"
		}
		return "", &RemoteError{Kind: domain.ErrorKindUpload, StatusCode: resp.StatusCode, Message: msg}
	}

	c.logger.Debug().
		Str("file", filepath.Base(path)).
		Dur("elapsed", time.Since(started)).
		Msg("upload acknowledged")
	return serverPath, nil
}

// streamMultipart encodes src as a multipart body without buffering it in memory.
func streamMultipart(src io.Reader, filename string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(writer.Close())
	}()

	return pr, writer.FormDataContentType()
}
