package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedServer struct {
	mu       sync.Mutex
	keys     []string
	statuses []int
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.keys = append(s.keys, r.Header.Get(idempotencyKeyHeader))
	n := len(s.keys)
	status := http.StatusCreated
	if n <= len(s.statuses) {
		status = s.statuses[n-1]
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch status {
	case http.StatusCreated, http.StatusOK:
		if status == http.StatusOK {
			w.Header().Set(replayedHeader, "true")
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(Expense{ID: 7, AmountMinor: 1230, Amount: "12.30", IdempotencyKey: r.Header.Get(idempotencyKeyHeader)})
	case http.StatusBadRequest:
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"invalid-input","message":"amount: invalid amount","field":"amount"}`))
	default:
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"storage-failure","message":"the ledger store is unavailable"}`))
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, MaxAttempts: 4})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestCreateExpense_RetriesReuseOneKey(t *testing.T) {
	script := &scriptedServer{statuses: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.CreateExpense(context.Background(), NewExpense{Amount: "12.30", Category: "Food", Description: "lunch", Date: "2024-03-15"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Replayed)
	require.Len(t, script.keys, 3)
	assert.NotEmpty(t, script.keys[0])
	assert.Equal(t, script.keys[0], script.keys[1])
	assert.Equal(t, script.keys[0], script.keys[2])
	assert.Equal(t, script.keys[0], res.Expense.IdempotencyKey)
}

func TestCreateExpense_DistinctCallsUseDistinctKeys(t *testing.T) {
	script := &scriptedServer{}
	srv := httptest.NewServer(script)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for range 2 {
		_, err := c.CreateExpense(context.Background(), NewExpense{Amount: "1"})
		require.NoError(t, err)
	}
	require.Len(t, script.keys, 2)
	assert.NotEqual(t, script.keys[0], script.keys[1])
}

func TestCreateExpense_Replayed(t *testing.T) {
	srv := httptest.NewServer(&scriptedServer{statuses: []int{http.StatusOK}})
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).CreateExpenseWithKey(context.Background(), "fixed", NewExpense{Amount: "1"})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, "fixed", res.Expense.IdempotencyKey)
}

func TestCreateExpense_InvalidInputIsNotRetried(t *testing.T) {
	script := &scriptedServer{statuses: []int{http.StatusBadRequest}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateExpense(context.Background(), NewExpense{Amount: "x"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid-input", apiErr.Kind)
	assert.Equal(t, "amount", apiErr.Field)
	assert.Len(t, script.keys, 1)
}

func TestCreateExpense_RetriesExhausted(t *testing.T) {
	script := &scriptedServer{statuses: []int{500, 502, 503, 504}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateExpense(context.Background(), NewExpense{Amount: "1"})
	require.ErrorIs(t, err, ErrRetriesExhausted)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusGatewayTimeout, apiErr.StatusCode)
	assert.Len(t, script.keys, 4)
}

func TestCreateExpense_TransportErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(&scriptedServer{})
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.CreateExpense(context.Background(), NewExpense{Amount: "1"})
	require.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestCreateExpense_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(&scriptedServer{statuses: []int{503, 503, 503, 503}})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.CreateExpense(ctx, NewExpense{Amount: "1"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBackoffCeiling(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost", BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	require.NoError(t, err)
	c.jitter = func(d time.Duration) time.Duration { return d }

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{40, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.backoff(tt.retry), "retry %d", tt.retry)
	}
}

func TestFullJitterStaysInRange(t *testing.T) {
	for range 100 {
		d := fullJitter(50 * time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), fullJitter(0))
}

func TestListExpenses(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]Expense{{ID: 2}, {ID: 1}})
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).ListExpenses(context.Background(), "Food", "date_desc")
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "category=Food&sort=date_desc", gotQuery)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}
