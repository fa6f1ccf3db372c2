// Package client talks to the walletwise HTTP API. A create is retried
// under one idempotency key, so a retry after a lost response can never
// record the expense twice.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"walletwise/internal/log"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
)

// ErrRetriesExhausted wraps the last failure once every attempt was used.
var ErrRetriesExhausted = errors.New("retries exhausted")

// APIError is a non-retryable error answer from the server.
type APIError struct {
	StatusCode int
	Kind       string `json:"error"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%d): %s [%s]", e.Kind, e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// Expense mirrors the server's record representation.
type Expense struct {
	ID             int64     `json:"id"`
	AmountMinor    int64     `json:"amount_minor"`
	Amount         string    `json:"amount"`
	Category       string    `json:"category"`
	Description    string    `json:"description"`
	Date           string    `json:"date"`
	CreatedAt      time.Time `json:"created_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// NewExpense is the payload of a create. Amount is sent as text so the
// server sees exactly what the user typed.
type NewExpense struct {
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// CreateResult reports the stored record and whether the server already had it.
type CreateResult struct {
	Expense  Expense
	Replayed bool
	Attempts int
}

// Config holds client settings. Zero values take defaults.
type Config struct {
	BaseURL     string
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *log.Logger
}

type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *log.Logger

	newKey func() string
	jitter func(time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) error
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:     base,
		httpClient:  cfg.HTTPClient,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		logger:      cfg.Logger,
		newKey:      func() string { return uuid.NewString() },
		jitter:      fullJitter,
		sleep:       sleepContext,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 5
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 200 * time.Millisecond
	}
	if c.maxDelay <= 0 {
		c.maxDelay = 5 * time.Second
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}
	c.logger = c.logger.WithComponent(log.ComponentClient)
	return c, nil
}

// CreateExpense records e. One key is generated per call and reused by
// every retry.
func (c *Client) CreateExpense(ctx context.Context, e NewExpense) (CreateResult, error) {
	return c.CreateExpenseWithKey(ctx, c.newKey(), e)
}

// CreateExpenseWithKey is CreateExpense with a caller-chosen key, for
// callers that persist the key across process restarts.
func (c *Client) CreateExpenseWithKey(ctx context.Context, key string, e NewExpense) (CreateResult, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return CreateResult{}, fmt.Errorf("encode expense: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt - 1)
			c.logger.DebugContext(ctx, "Retrying create",
				log.FieldIdempotencyKey, key,
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
				log.FieldError, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return CreateResult{}, err
			}
		}

		res, retry, err := c.createOnce(ctx, key, body)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		if !retry {
			return CreateResult{}, err
		}
		lastErr = err
	}

	c.logger.WarnContext(ctx, "Create failed after retries",
		log.FieldIdempotencyKey, key,
		"attempts", c.maxAttempts,
		log.FieldError, lastErr)
	return CreateResult{}, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.maxAttempts, lastErr)
}

// createOnce performs one POST. The bool reports whether the failure may be
// retried under the same key.
func (c *Client) createOnce(ctx context.Context, key string, body []byte) (CreateResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/expenses", nil), bytes.NewReader(body))
	if err != nil {
		return CreateResult{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(idempotencyKeyHeader, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return CreateResult{}, false, ctx.Err()
		}
		return CreateResult{}, true, fmt.Errorf("send create: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var out Expense
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return CreateResult{}, true, fmt.Errorf("decode create response: %w", err)
		}
		replayed := resp.StatusCode == http.StatusOK || resp.Header.Get(replayedHeader) == "true"
		return CreateResult{Expense: out, Replayed: replayed}, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return CreateResult{}, true, decodeAPIError(resp)
	default:
		return CreateResult{}, false, decodeAPIError(resp)
	}
}

// ListExpenses fetches records. Empty arguments mean no filter and the
// server's default order.
func (c *Client) ListExpenses(ctx context.Context, category, sort string) ([]Expense, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if sort != "" {
		q.Set("sort", sort)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/expenses", q), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var out []Expense
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return out, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// backoff returns the delay before retry n (1-based): an exponential cap
// with full jitter.
func (c *Client) backoff(n int) time.Duration {
	ceiling := c.maxDelay
	if n < 32 {
		if d := c.baseDelay << (n - 1); d > 0 && d < c.maxDelay {
			ceiling = d
		}
	}
	return c.jitter(ceiling)
}

func fullJitter(ceiling time.Duration) time.Duration {
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling + 1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Kind == "" {
		apiErr.Kind = http.StatusText(resp.StatusCode)
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
