package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/licensehub/internal/retry"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("http %d: %s", e.Status, e.Message) }

// Client talks to the public license endpoints from the device side
type Client struct {
	base  string
	http  *http.Client
	retry retry.RetryConfig
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		http:  &http.Client{Timeout: cfg.EffectiveTimeout()},
		retry: cfg.Retry,
	}
}

// Activate posts an activation for this device
func (c *Client) Activate(ctx context.Context, req ActivateRequest) (*ActivationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/license/activate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out ActivationResult
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate checks a serial without side effects. Being idempotent it is
// retried on network failures and 5xx/429 answers; Activate never is.
func (c *Client) Validate(ctx context.Context, serial string) (*ValidationResult, error) {
	var out ValidationResult
	res := retry.Do(ctx, c.retry, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.base+"/license/validate?serial="+url.QueryEscape(serial), nil)
		if err != nil {
			return err
		}
		out = ValidationResult{}
		return c.do(httpReq, &out)
	}, Retryable)
	if res.LastError != nil {
		return nil, res.LastError
	}
	return &out, nil
}

// Retryable reports whether a client error is worth another attempt
func Retryable(err error) bool {
	var netErr NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusTooManyRequests
	}
	return false
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return NetworkError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return NetworkError{Err: err}
	}
	if resp.StatusCode >= 400 {
		var envelope struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload, &envelope) != nil || envelope.Message == "" {
			envelope.Message = strings.TrimSpace(string(payload))
		}
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
