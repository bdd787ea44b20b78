package ltrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is where a locally running LTrail server listens.
const DefaultBaseURL = "http://localhost:8080/api"

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the API root of the LTrail server. Defaults to
	// DefaultBaseURL when empty.
	BaseURL string

	// APIKey, when set, is sent as a bearer token. The open-source server
	// ignores it; hosted deployments may enforce it.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with the configured Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 5 seconds:
	// trace delivery must never stall the instrumented pipeline.
	Timeout time.Duration
}

// Client is an HTTP client for the LTrail trace API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("ltrail: invalid BaseURL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  httpClient,
		timeout: timeout,
	}, nil
}

// SendTrace submits a full trace, creating it or replacing it entirely.
func (c *Client) SendTrace(ctx context.Context, trace *Trace) (*TraceAck, error) {
	var ack TraceAck
	if err := c.post(ctx, "/traces", trace, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// SendStep submits one step of a trace. The server creates a placeholder
// trace when the id is unknown, so steps can be sent before the trace.
func (c *Client) SendStep(ctx context.Context, traceID string, step Step) (*StepAck, error) {
	if traceID == "" {
		return nil, fmt.Errorf("ltrail: traceID is required")
	}
	var ack StepAck
	body := stepUpdateBody{TraceID: traceID, Step: step}
	if err := c.post(ctx, "/traces/"+url.PathEscape(traceID)+"/steps", body, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// SendTraceAsync submits a trace on a detached goroutine with a bounded
// timeout. Failures are swallowed: telemetry must never break the
// pipeline it observes. Use SendTrace when delivery matters.
func (c *Client) SendTraceAsync(trace *Trace) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		_, _ = c.SendTrace(ctx, trace)
	}()
}

// SendStepAsync submits a step on a detached goroutine with a bounded
// timeout, swallowing failures like SendTraceAsync.
func (c *Client) SendStepAsync(traceID string, step Step) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		_, _ = c.SendStep(ctx, traceID, step)
	}()
}

// GetTrace fetches a trace with its full step sequence.
func (c *Client) GetTrace(ctx context.Context, traceID string) (*Trace, error) {
	var trace Trace
	if err := c.get(ctx, "/traces/"+url.PathEscape(traceID), &trace); err != nil {
		return nil, err
	}
	return &trace, nil
}

// Health checks the server's health endpoint. The health route lives at
// the server root rather than under the API prefix.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	root := strings.TrimSuffix(c.baseURL, "/api")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, root+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("ltrail: create request: %w", err)
	}
	var health Health
	if err := c.doRequest(req, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ltrail: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("ltrail: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ltrail: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ltrail: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ltrail: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	return json.Unmarshal(bodyBytes, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
