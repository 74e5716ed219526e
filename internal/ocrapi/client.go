package ocrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/ocrparse/internal/metrics"
)

// Endpoints are the URLs of the remote OCR service.
type Endpoints struct {
	Login       string `mapstructure:"login" yaml:"login" json:"login"`
	Refresh     string `mapstructure:"refresh" yaml:"refresh" json:"refresh"`
	Upload      string `mapstructure:"upload" yaml:"upload" json:"upload"`
	OCRByFileID string `mapstructure:"ocr_by_file_id" yaml:"ocr_by_file_id" json:"ocr_by_file_id"`
	Field       string `mapstructure:"field" yaml:"field" json:"field"`
}

// AuthError reports that no usable token could be obtained.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ocr api %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Client talks to the remote OCR service. It is safe for concurrent use.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	policies   Policies
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPolicies overrides the retry policies.
func WithPolicies(p Policies) Option {
	return func(c *Client) { c.policies = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// NewClient creates a client for the given endpoints.
func NewClient(endpoints Endpoints, opts ...Option) *Client {
	c := &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{},
		policies:   DefaultPolicies(),
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoints returns the configured endpoints.
func (c *Client) Endpoints() Endpoints { return c.endpoints }

// WithEndpoints returns a copy of c for one settings snapshot. Non-empty
// fields of e replace the base endpoints and non-zero policies replace the
// base policies. The copy shares the HTTP client.
func (c *Client) WithEndpoints(e Endpoints, p Policies) *Client {
	out := *c
	override(&out.endpoints.Login, e.Login)
	override(&out.endpoints.Refresh, e.Refresh)
	override(&out.endpoints.Upload, e.Upload)
	override(&out.endpoints.OCRByFileID, e.OCRByFileID)
	override(&out.endpoints.Field, e.Field)
	if p != (Policies{}) {
		out.policies = p
	}
	return &out
}

func override(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}

func bearerHeader(access string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+access)
	return h
}

func validateTokens(body []byte) error {
	var tp TokenPair
	if err := json.Unmarshal(body, &tp); err != nil {
		return fmt.Errorf("invalid token response: %w", err)
	}
	if tp.Access == "" {
		return errors.New("token response without access token")
	}
	return nil
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, creds Credentials) (TokenPair, error) {
	payload, err := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to encode login payload: %w", err)
	}

	body, err := c.call(ctx, request{
		endpoint: "login",
		method:   http.MethodPost,
		url:      c.endpoints.Login,
		header:   jsonHeader(),
		body:     payload,
		policy:   c.policies.Auth,
		validate: validateTokens,
	})
	if err != nil {
		return TokenPair{}, &AuthError{Op: "login", Err: err}
	}

	var tp TokenPair
	if err := json.Unmarshal(body, &tp); err != nil {
		return TokenPair{}, &AuthError{Op: "login", Err: err}
	}
	return tp, nil
}

// RefreshToken trades a refresh token for a new pair. ErrRejected means the
// refresh token itself expired and the caller has to log in again.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to encode refresh payload: %w", err)
	}

	body, err := c.call(ctx, request{
		endpoint: "refresh",
		method:   http.MethodPost,
		url:      c.endpoints.Refresh,
		header:   jsonHeader(),
		body:     payload,
		policy:   c.policies.Auth,
		fail:     []int{http.StatusUnauthorized},
		validate: validateTokens,
	})
	if err != nil {
		return TokenPair{}, err
	}

	var tp TokenPair
	if err := json.Unmarshal(body, &tp); err != nil {
		return TokenPair{}, fmt.Errorf("invalid refresh response: %w", err)
	}
	if tp.Refresh == "" {
		tp.Refresh = refresh
	}
	return tp, nil
}

// UploadFile uploads a document. It is attempted exactly once: only 201 is
// success, 401 yields ErrRejected and anything else ErrUploadFailed.
func (c *Client) UploadFile(ctx context.Context, access, filename string, data []byte) (UploadedFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, kv := range [][2]string{{"title", filename}, {"folder", "1"}, {"extract", "1"}} {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return UploadedFile{}, fmt.Errorf("failed to write form field %s: %w", kv[0], err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return UploadedFile{}, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadedFile{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	header := bearerHeader(access)
	header.Set("Content-Type", mw.FormDataContentType())

	status, body, err := c.do(ctx, request{
		endpoint: "upload",
		method:   http.MethodPost,
		url:      c.endpoints.Upload,
		header:   header,
		body:     buf.Bytes(),
		policy:   RetryPolicy{MaxRetries: 1, Timeout: c.policies.UploadTimeout},
	})
	if err != nil {
		metrics.APICalls.WithLabelValues("upload", "exhausted").Inc()
		return UploadedFile{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	switch status {
	case http.StatusCreated:
	case http.StatusUnauthorized:
		metrics.APICalls.WithLabelValues("upload", "rejected").Inc()
		return UploadedFile{}, fmt.Errorf("%w: upload returned %d", ErrRejected, status)
	default:
		metrics.APICalls.WithLabelValues("upload", "failed").Inc()
		c.logger.Error("OCR upload failed",
			slog.Int("status", status),
			slog.String("body", truncate(body, 512)))
		return UploadedFile{}, fmt.Errorf("%w: status %d", ErrUploadFailed, status)
	}

	var resp struct {
		ID FlexID `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return UploadedFile{}, fmt.Errorf("%w: invalid upload response: %w", ErrUploadFailed, err)
	}
	metrics.APICalls.WithLabelValues("upload", "ok").Inc()
	return UploadedFile{FileID: resp.ID.String()}, nil
}

// PollOCRResult fetches the OCR result of an uploaded file, waiting
// pageCount times the per-page delay between in-progress answers.
func (c *Client) PollOCRResult(ctx context.Context, access, fileID string, pageCount int) (*PollResponse, error) {
	if pageCount < 1 {
		pageCount = 1
	}
	policy := c.policies.Poll
	if c.policies.PollDelayPerPage > 0 {
		policy.Delay = time.Duration(pageCount) * c.policies.PollDelayPerPage
	}

	body, err := c.call(ctx, request{
		endpoint:   "poll",
		method:     http.MethodGet,
		url:        c.endpoints.OCRByFileID,
		header:     bearerHeader(access),
		query:      map[string]string{"file_id": fileID},
		policy:     policy,
		fail:       []int{http.StatusUnauthorized},
		inProgress: statusInProgress,
		validate: func(b []byte) error {
			var pr PollResponse
			return json.Unmarshal(b, &pr)
		},
	})
	if err != nil {
		return nil, err
	}

	var pr PollResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("invalid poll response: %w", err)
	}
	return &pr, nil
}

// ExtractFields asks the field endpoint to apply one form template to a
// finished OCR request and returns the raw response body.
func (c *Client) ExtractFields(ctx context.Context, access, requestID, formCode string) (json.RawMessage, error) {
	payload, err := json.Marshal(struct {
		RequestID    string   `json:"request_id"`
		ListFormCode []string `json:"list_form_code"`
		IsSingleForm bool     `json:"is_single_form"`
	}{requestID, []string{formCode}, true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode field payload: %w", err)
	}

	header := bearerHeader(access)
	header.Set("Content-Type", "application/json")

	body, err := c.call(ctx, request{
		endpoint: "field",
		method:   http.MethodPost,
		url:      c.endpoints.Field,
		header:   header,
		body:     payload,
		policy:   c.policies.Field,
		fail:     []int{http.StatusUnauthorized},
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// ResolveFormCode tries each candidate in order and returns the fields and
// name of the first template the service matched. Non-list answers and
// exhausted calls count as no match. When nothing matches the last field
// response is returned with an empty form code. A rejection is returned
// immediately so the caller can refresh and start over.
func (c *Client) ResolveFormCode(ctx context.Context, access, requestID string, candidates []FormCode) (json.RawMessage, string, error) {
	var last json.RawMessage
	for _, cand := range candidates {
		fields, err := c.ExtractFields(ctx, access, requestID, cand.Name)
		switch {
		case errors.Is(err, ErrRejected):
			return nil, "", err
		case err != nil:
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			c.logger.Warn("Field extraction failed for form code",
				slog.String("form_code", cand.Name),
				slog.String("error", err.Error()))
			continue
		}

		last = fields
		if matchesTemplate(fields) {
			return fields, cand.Name, nil
		}
		c.logger.Debug("Form code did not match", slog.String("form_code", cand.Name))
	}
	return last, "", nil
}

// matchesTemplate reports whether body is a non-empty JSON array whose first
// object does not carry the id -1 sentinel.
func matchesTemplate(body []byte) bool {
	var objs []map[string]json.RawMessage
	if err := json.Unmarshal(body, &objs); err != nil || len(objs) == 0 {
		return false
	}
	raw, ok := objs[0]["id"]
	if !ok {
		return true
	}
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
	if err != nil {
		return true
	}
	return f != -1
}
