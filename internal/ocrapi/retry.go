package ocrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/MeKo-Tech/ocrparse/internal/metrics"
)

var (
	// ErrNoResult is returned when every attempt of a call failed transiently.
	ErrNoResult = errors.New("ocr api: no result after retries")
	// ErrRejected is returned when the API answered with a status from the
	// call's fail set (401 for bearer-authenticated calls).
	ErrRejected = errors.New("ocr api: request rejected")
	// ErrUploadFailed is returned when an upload is not answered with 201.
	ErrUploadFailed = errors.New("ocr api: upload failed")
)

// RetryPolicy bounds one logical call.
type RetryPolicy struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Delay      time.Duration `mapstructure:"delay" yaml:"delay" json:"delay"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// Policies groups the retry policy of every endpoint.
type Policies struct {
	Auth  RetryPolicy `mapstructure:"auth" yaml:"auth" json:"auth"`
	Poll  RetryPolicy `mapstructure:"poll" yaml:"poll" json:"poll"`
	Field RetryPolicy `mapstructure:"field" yaml:"field" json:"field"`
	// PollDelayPerPage replaces Poll.Delay: the wait grows with page count.
	PollDelayPerPage time.Duration `mapstructure:"poll_delay_per_page" yaml:"poll_delay_per_page" json:"poll_delay_per_page"`
	UploadTimeout    time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout" json:"upload_timeout"`
}

// DefaultPolicies mirrors the limits the remote service was tuned for.
func DefaultPolicies() Policies {
	return Policies{
		Auth:             RetryPolicy{MaxRetries: 2, Delay: 5 * time.Second, Timeout: 20 * time.Second},
		Poll:             RetryPolicy{MaxRetries: 5, Delay: 3 * time.Second, Timeout: 30 * time.Second},
		Field:            RetryPolicy{MaxRetries: 5, Delay: 5 * time.Second, Timeout: 100 * time.Second},
		PollDelayPerPage: 3 * time.Second,
		UploadTimeout:    100 * time.Second,
	}
}

// request describes one retried call.
type request struct {
	endpoint string // metric label
	method   string
	url      string
	header   http.Header
	body     []byte
	query    map[string]string

	policy     RetryPolicy
	success    []int
	fail       []int
	inProgress func(body []byte) bool
	// validate rejects bodies that cannot be used; they count as transient.
	validate func(body []byte) error
}

// call performs req with the bounded retry policy. It returns the body of the
// first successful, settled response. Exhaustion yields ErrNoResult and a
// status from the fail set yields ErrRejected; neither is retried further.
func (c *Client) call(ctx context.Context, req request) ([]byte, error) {
	maxRetries := req.policy.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	success := req.success
	if len(success) == 0 {
		success = []int{http.StatusOK}
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			metrics.APIRetries.WithLabelValues(req.endpoint).Inc()
		}

		status, body, err := c.do(ctx, req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("OCR request failed, retrying",
				slog.String("endpoint", req.endpoint),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		case slices.Contains(success, status):
			if req.inProgress != nil && req.inProgress(body) {
				c.logger.Debug("OCR job still in progress",
					slog.String("endpoint", req.endpoint),
					slog.Int("attempt", attempt))
				break
			}
			if req.validate != nil {
				if verr := req.validate(body); verr != nil {
					c.logger.Warn("OCR response not usable, retrying",
						slog.String("endpoint", req.endpoint),
						slog.Int("attempt", attempt),
						slog.String("error", verr.Error()))
					break
				}
			}
			metrics.APICalls.WithLabelValues(req.endpoint, "ok").Inc()
			return body, nil
		case slices.Contains(req.fail, status):
			metrics.APICalls.WithLabelValues(req.endpoint, "rejected").Inc()
			return nil, fmt.Errorf("%w: %s returned %d", ErrRejected, req.endpoint, status)
		default:
			c.logger.Error("OCR error response",
				slog.String("endpoint", req.endpoint),
				slog.Int("status", status),
				slog.String("body", truncate(body, 512)))
		}

		if attempt < maxRetries {
			if err := c.sleep(ctx, req.policy.Delay); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Error("Max retries reached, OCR request failed",
		slog.String("endpoint", req.endpoint),
		slog.Int("attempts", maxRetries))
	metrics.APICalls.WithLabelValues(req.endpoint, "exhausted").Inc()
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrNoResult, req.endpoint, maxRetries)
}

// do executes a single attempt bounded by the policy timeout.
func (c *Client) do(ctx context.Context, req request) (int, []byte, error) {
	if req.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.policy.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if len(req.query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// statusInProgress reports whether a poll body still has the in-progress status.
func statusInProgress(body []byte) bool {
	var status struct {
		StatusCode *int `json:"status_code"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return false
	}
	return status.StatusCode != nil && *status.StatusCode == StatusInProgress
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
