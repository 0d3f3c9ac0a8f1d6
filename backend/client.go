// Package backend talks to the inference backend over HTTP: one streamed
// request per chat turn and one multipart request per document upload.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"nutribot/model"
)

const (
	DefaultBaseURL = "http://localhost:8000"

	chatPath   = "/chat"
	uploadPath = "/upload-pdf"

	// errorBodyLimit caps how much of a failed response is read into the error
	errorBodyLimit = 4096
)

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message    string              `json:"message"`
	Model      model.SelectedModel `json:"model"`
	APIKey     string              `json:"apiKey"`
	PDFContext *string             `json:"pdfContext"`
}

// Client is an HTTP client for the backend
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	uploadTimeout time.Duration
	log           zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. It must not set a
// Timeout, which would cut off long streamed answers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUploadTimeout bounds document uploads. Zero means no limit.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.uploadTimeout = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l.With().Str("component", "backend").Logger()
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	parsedURL, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid backend URL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, errors.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:       parsedURL,
		httpClient:    http.DefaultClient,
		uploadTimeout: 2 * time.Minute,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root URL
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// OpenChat submits a turn and returns the streamed answer. Any failure
// before the body starts is a *model.TransportError. The caller must
// Close the returned stream.
func (c *Client) OpenChat(ctx context.Context, req ChatRequest) (UnitStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &model.TransportError{Op: "chat", Err: errors.Wrap(err, "encode request")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(chatPath), bytes.NewReader(body))
	if err != nil {
		return nil, &model.TransportError{Op: "chat", Err: errors.Wrap(err, "build request")}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")

	c.log.Debug().
		Str("model", req.Model.ID).
		Int("message_len", len(req.Message)).
		Bool("grounded", req.PDFContext != nil).
		Msg("opening chat stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &model.TransportError{Op: "chat", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &model.TransportError{
			Op:         "chat",
			StatusCode: resp.StatusCode,
			Err:        errors.New(readErrorBody(resp)),
		}
	}

	return newUnitStream(resp.Body), nil
}

// readErrorBody extracts a readable reason from a failed response. FastAPI
// style {"detail": "..."} bodies are unwrapped.
func readErrorBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
		return detail.Detail
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
