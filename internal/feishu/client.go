package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public open platform endpoint
const DefaultBaseURL = "https://open.feishu.cn/open-apis"

// maxEnvelopeSize bounds JSON answers read from the platform
const maxEnvelopeSize = 32 << 20

// ClientConfig holds configuration for the platform client
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration // per call
	HTTPClient *http.Client  // Optional: defaults to a client without a global timeout
	Retry      *RetryConfig  // Optional: defaults to DefaultRetryConfig
	Logger     *slog.Logger  // Optional: defaults to a discard logger
}

// Client talks to the open platform JSON API
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// NewClient creates a platform client
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Retry == nil {
		config.Retry = &DefaultRetryConfig
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
		retry:      *config.Retry,
		logger:     config.Logger,
	}
}

// WithLogger sets the logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the common answer shape of the platform
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// call performs one JSON API request and decodes envelope.data into out.
// Transient failures are retried according to the client's retry config.
func (c *Client) call(ctx context.Context, operation, method, path string, cred AccessCredential, body any, out any) error {
	return Retry(ctx, c.retry, func(attempt int) error {
		env, err := c.roundTrip(ctx, operation, method, path, cred, body)
		if err != nil {
			c.logger.WarnContext(ctx, "platform call failed",
				"operation", operation,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		if out == nil || len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &RemoteFetchError{
				Operation: operation,
				Msg:       "malformed response data",
				Err:       err,
			}
		}
		return nil
	})
}

// roundTrip issues a single request and validates the envelope
func (c *Client) roundTrip(ctx context.Context, operation, method, path string, cred AccessCredential, body any) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if cred != "" {
		req.Header.Set("Authorization", cred.Header())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
	if err != nil {
		return nil, &NetworkError{URL: target, Status: resp.StatusCode, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	// A decodable envelope carries a more precise verdict than the status line
	if decodeErr == nil && env.Code != 0 {
		if resp.StatusCode == http.StatusForbidden || isPermissionAnswer(env.Code, env.Msg) {
			return nil, &PermissionError{Operation: operation, Code: env.Code, Msg: env.Msg}
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &NetworkError{URL: target, Status: resp.StatusCode, Err: fmt.Errorf("code %d: %s", env.Code, env.Msg)}
		}
		return nil, &RemoteFetchError{Operation: operation, Code: env.Code, Msg: env.Msg}
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, &PermissionError{Operation: operation, Msg: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{URL: target, Status: resp.StatusCode, Err: fmt.Errorf("%s", truncate(string(raw), 256))}
	}
	if decodeErr != nil {
		return nil, &RemoteFetchError{Operation: operation, Msg: "response is not JSON", Err: decodeErr}
	}

	return &env, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
