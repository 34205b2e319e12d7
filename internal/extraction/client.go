// Package extraction talks to the external document-extraction service and
// to share links that serve already-extracted rows.
//
// Dispatch is fire-and-forget: the service acknowledges the upload and later
// writes its rows back to the staging endpoint under the same correlation
// key. Nothing here waits for extraction to finish.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// ErrNotConfigured is returned by Dispatch when no service URL is set.
var ErrNotConfigured = errors.New("extraction service is not configured")

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 2048

// Request is one document handed to the extraction service.
type Request struct {
	Key         string
	Filename    string
	ContentType string
	Data        []byte
}

// Dispatcher sends a document for asynchronous extraction.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// DispatchError reports a non-2xx answer from the extraction service.
type DispatchError struct {
	StatusCode int
	Body       string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("extraction dispatch failed: status %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	URL         string
	Token       string
	CallbackURL string
	Timeout     time.Duration
}

// Client posts documents to the extraction service as multipart forms.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ Dispatcher = (*Client)(nil)

// NewClient returns a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Dispatch uploads req.Data with its correlation key. It returns once the
// service has accepted the file.
func (c *Client) Dispatch(ctx context.Context, req Request) error {
	if c.cfg.URL == "" {
		return ErrNotConfigured
	}

	body, contentType, err := buildForm(req, c.cfg.CallbackURL)
	if err != nil {
		return fmt.Errorf("build extraction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return fmt.Errorf("build extraction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("X-Correlation-Key", req.Key)
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("extraction dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DispatchError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func buildForm(req Request, callbackURL string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{{"key", req.Key}, {"filename", req.Filename}}
	if callbackURL != "" {
		fields = append(fields, [2]string{"callback_url", callbackURL})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.Filename))
	ct := req.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}
