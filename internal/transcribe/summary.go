package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"video-transcriber/internal/domain"
)

const (
	summaryFailedMessage = "Summary generation failed."
	maxDocumentBytes     = 64 << 20
	documentExt          = ".docx"
)

// SummaryRequest carries the transcript and the server-side slides reference.
type SummaryRequest struct {
	Transcript string
	SlidesRef  string
	OutputName string
}

// SummaryResult is the generated document, plus the summary text when the server sends it.
type SummaryResult struct {
	Filename string
	Document []byte
	Summary  string
}

// SummaryClient requests summary documents from the worker service.
type SummaryClient struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewSummaryClient builds a client for {serverURL}/summarise.
func NewSummaryClient(serverURL string, timeout time.Duration, logger zerolog.Logger) *SummaryClient {
	return &SummaryClient{
		endpoint: strings.TrimRight(serverURL, "/") + "/summarise",
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "summary").Logger(),
	}
}

type summaryResponse struct {
	Summary  string `json:"summary"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// Summarize posts the request and returns the document the server produced.
func (c *SummaryClient) Summarize(ctx context.Context, request SummaryRequest) (SummaryResult, error) {
	if strings.TrimSpace(request.Transcript) == "" {
		return SummaryResult{}, &RemoteError{Kind: domain.ErrorKindSummary, Message: "transcript is empty"}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := [][2]string{
		{"transcript", request.Transcript},
		{"slides_path", request.SlidesRef},
		{"output_name", request.OutputName},
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return SummaryResult{}, fmt.Errorf("encode %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return SummaryResult{}, fmt.Errorf("encode summary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return SummaryResult{}, &RemoteError{Kind: domain.ErrorKindSummary, Message: "build summary request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return SummaryResult{}, &RemoteError{Kind: domain.ErrorKindSummary, Message: summaryFailedMessage, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return SummaryResult{}, &RemoteError{Kind: domain.ErrorKindSummary, StatusCode: resp.StatusCode, Message: summaryFailedMessage, Err: err}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	isJSON := mediaType == "application/json"

	if resp.StatusCode >= 300 {
		msg := summaryFailedMessage
		if isJSON {
			var decoded summaryResponse
			if json.Unmarshal(raw, &decoded) == nil && strings.TrimSpace(decoded.Error) != "" {
				msg = strings.TrimSpace(decoded.Error)
			}
		}
		return SummaryResult{}, &RemoteError{Kind: domain.ErrorKindSummary, StatusCode: resp.StatusCode, Message: msg}
	}

	result := SummaryResult{Filename: documentName(resp.Header.Get("Content-Disposition"), request.OutputName)}
	if isJSON {
		var decoded summaryResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return SummaryResult{}, &RemoteError{Kind: domain.ErrorKindSummary, StatusCode: resp.StatusCode, Message: "decode summary response", Err: err}
		}
		if strings.TrimSpace(decoded.Error) != "" {
			return SummaryResult{}, &RemoteError{Kind: domain.ErrorKindSummary, StatusCode: resp.StatusCode, Message: strings.TrimSpace(decoded.Error)}
		}
		result.Summary = decoded.Summary
		if decoded.Filename != "" {
			result.Filename = filepath.Base(decoded.Filename)
		}
	} else {
		result.Document = raw
	}

	if len(result.Document) == 0 && strings.TrimSpace(result.Summary) == "" {
		return SummaryResult{}, &RemoteError{Kind: domain.ErrorKindSummary, StatusCode: resp.StatusCode, Message: "summary response was empty"}
	}

	c.logger.Info().
		Str("filename", result.Filename).
		Str("size", humanize.Bytes(uint64(len(result.Document)))).
		Msg("summary received")
	return result, nil
}

// documentName prefers the Content-Disposition filename and falls back to <outputName>.docx.
func documentName(disposition, outputName string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := filepath.Base(strings.TrimSpace(params["filename"])); name != "" && name != "." && name != "/" {
			return name
		}
	}

	name := strings.TrimSpace(outputName)
	if name == "" {
		name = "summary"
	}
	if !strings.EqualFold(filepath.Ext(name), documentExt) {
		name += documentExt
	}
	return filepath.Base(name)
}
