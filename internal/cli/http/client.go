package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeexec/internal/common/http/middleware"
	"codeexec/internal/execution"
	"codeexec/pkg/utils/response"
)

const (
	executePath   = "/api/v1/execute"
	languagesPath = "/api/v1/languages"
)

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ExecuteResult is the decoded answer to one execute call.
type ExecuteResult struct {
	execution.ExecutionResponse
	StatusCode int
	// ErrorCode is set when the request was rejected.
	ErrorCode string
	TraceID   string
	Duration  time.Duration
	Raw       []byte
}

// Client wraps HTTP requests for CLI.
type Client struct {
	baseURL string
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	c := &Client{timeout: timeout}
	c.SetBaseURL(baseURL)
	return c
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func (c *Client) Do(ctx context.Context, method, path string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo
	client := &http.Client{Timeout: c.timeout}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}

// Execute submits code. Rejections (4xx/5xx with an error body) are returned
// as results, not errors; only transport and decoding failures are errors.
func (c *Client) Execute(ctx context.Context, req execution.ExecutionRequest) (ExecuteResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("marshal request failed: %w", err)
	}
	info, err := c.Do(ctx, http.MethodPost, executePath, body)
	if err != nil {
		return ExecuteResult{}, err
	}
	result := ExecuteResult{
		StatusCode: info.StatusCode,
		ErrorCode:  info.Headers.Get(response.ErrorCodeHeader),
		TraceID:    info.Headers.Get(middleware.TraceIDHeader),
		Duration:   info.Duration,
		Raw:        info.Body,
	}
	if err := json.Unmarshal(info.Body, &result.ExecutionResponse); err != nil {
		return result, fmt.Errorf("unexpected response (HTTP %d): %s", info.StatusCode, snippet(info.Body))
	}
	return result, nil
}

// Languages lists the languages the service knows.
func (c *Client) Languages(ctx context.Context) ([]execution.LanguageInfo, error) {
	info, err := c.Do(ctx, http.MethodGet, languagesPath, nil)
	if err != nil {
		return nil, err
	}
	if info.StatusCode != http.StatusOK {
		var errBody response.ErrorBody
		if json.Unmarshal(info.Body, &errBody) == nil && errBody.Error != "" {
			return nil, fmt.Errorf("list languages failed (HTTP %d): %s", info.StatusCode, errBody.Error)
		}
		return nil, fmt.Errorf("list languages failed (HTTP %d): %s", info.StatusCode, snippet(info.Body))
	}
	var payload struct {
		Languages []execution.LanguageInfo `json:"languages"`
	}
	if err := json.Unmarshal(info.Body, &payload); err != nil {
		return nil, fmt.Errorf("decode languages failed: %w", err)
	}
	return payload.Languages, nil
}

func snippet(body []byte) string {
	const max = 200
	text := strings.TrimSpace(string(body))
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
