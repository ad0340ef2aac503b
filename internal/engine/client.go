package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/tools"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	stirlingHealthPath  = "/api/v1/info/status"
	gotenbergHealthPath = "/health"
	errorBodyLimit      = 4 << 10
)

// Config holds engine endpoints and credentials
type Config struct {
	StirlingURL       string
	StirlingAPIKey    string
	StirlingTimeout   time.Duration
	GotenbergURL      string
	GotenbergUser     string
	GotenbergPassword string
	GotenbergTimeout  time.Duration
	MaxResponseBytes  int64
}

// File is one multipart file part
type File struct {
	Name string
	Data []byte
}

// Call is one request to an engine endpoint
type Call struct {
	Engine    tools.Engine
	Path      string
	FileField string
	Files     []File
	Fields    map[string]string
}

// Result is the engine's response payload
type Result struct {
	Body        []byte
	ContentType string
	Filename    string
}

// Client relays multipart calls to the PDF engines
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an engine client. A nil httpClient gets a traced default transport.
func NewClient(config Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = 200 << 20
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Do sends the call as multipart/form-data and returns the processed document
func (c *Client) Do(ctx context.Context, call Call) (*Result, error) {
	baseURL, timeout, err := c.endpoint(call.Engine)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeForm(call)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+call.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req, call.Engine)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Engine request failed",
			slog.String("engine", string(call.Engine)),
			slog.String("path", call.Path),
			slog.Any("error", err),
		)
		return nil, &Error{Engine: call.Engine, Message: "engine unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := readErrorMessage(resp.Body)
		c.logger.Warn("Engine returned an error",
			slog.String("engine", string(call.Engine)),
			slog.String("path", call.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("message", message),
		)
		return nil, &Error{Engine: call.Engine, StatusCode: resp.StatusCode, Message: message}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return nil, &Error{Engine: call.Engine, StatusCode: resp.StatusCode, Message: "failed to read engine response", Err: err}
	}
	if int64(len(data)) > c.config.MaxResponseBytes {
		return nil, &Error{
			Engine:     call.Engine,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("engine response exceeds %d bytes", c.config.MaxResponseBytes),
		}
	}

	c.logger.Debug("Engine call finished",
		slog.String("engine", string(call.Engine)),
		slog.String("path", call.Path),
		slog.Int("files", len(call.Files)),
		slog.Int("response_bytes", len(data)),
		slog.Duration("latency", time.Since(start)),
	)

	return &Result{
		Body:        data,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		Filename:    dispositionFilename(resp.Header.Get("Content-Disposition")),
	}, nil
}

// Ping checks that an engine answers its health endpoint
func (c *Client) Ping(ctx context.Context, engine tools.Engine) error {
	baseURL, _, err := c.endpoint(engine)
	if err != nil {
		return err
	}

	path := stirlingHealthPath
	if engine == tools.EngineGotenberg {
		path = gotenbergHealthPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	c.authorize(req, engine)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Engine: engine, Message: "engine unreachable", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &Error{Engine: engine, StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

func (c *Client) endpoint(engine tools.Engine) (string, time.Duration, error) {
	switch engine {
	case tools.EngineStirling:
		return strings.TrimRight(c.config.StirlingURL, "/"), c.config.StirlingTimeout, nil
	case tools.EngineGotenberg:
		return strings.TrimRight(c.config.GotenbergURL, "/"), c.config.GotenbergTimeout, nil
	default:
		return "", 0, fmt.Errorf("unknown engine %q", engine)
	}
}

func (c *Client) authorize(req *http.Request, engine tools.Engine) {
	switch engine {
	case tools.EngineStirling:
		if c.config.StirlingAPIKey != "" {
			req.Header.Set("X-API-KEY", c.config.StirlingAPIKey)
		}
	case tools.EngineGotenberg:
		if c.config.GotenbergUser != "" {
			req.SetBasicAuth(c.config.GotenbergUser, c.config.GotenbergPassword)
		}
	}
}

func encodeForm(call Call) (io.Reader, string, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	for _, f := range call.Files {
		part, err := writer.CreateFormFile(call.FileField, f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}

	for key, val := range call.Fields {
		if err := writer.WriteField(key, val); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

// readErrorMessage extracts a message from a JSON error body, falling back to the raw text
func readErrorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, errorBodyLimit))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "empty error response"
	}
	return text
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return mt
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// Error is a failed engine call
type Error struct {
	Engine     tools.Engine
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Engine, e.Message, e.Err)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Engine, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is an engine failure worth retrying:
// transport errors, 429 and 5xx responses
func IsRetryable(err error) bool {
	var engineErr *Error
	if !errors.As(err, &engineErr) {
		return false
	}
	if engineErr.StatusCode == 0 {
		return !errors.Is(engineErr.Err, context.Canceled)
	}
	return engineErr.StatusCode == http.StatusTooManyRequests || engineErr.StatusCode >= 500
}

// IsClientError reports whether the engine rejected the input itself
func IsClientError(err error) bool {
	var engineErr *Error
	if !errors.As(err, &engineErr) {
		return false
	}
	return engineErr.StatusCode >= 400 && engineErr.StatusCode < 500 && engineErr.StatusCode != http.StatusTooManyRequests
}
