package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "walletwise/internal/http"
	"walletwise/internal/log"
	"walletwise/internal/services"
	"walletwise/internal/storage/memory"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.New()
	svc := services.NewExpenseService(store, services.NewResolver(store, nil))
	srv := apphttp.NewServer(apphttp.Config{Logger: log.Discard()}, svc)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return ts
}

func TestAddThenList(t *testing.T) {
	ts := newAPIServer(t)
	ctx := context.Background()

	var out bytes.Buffer
	args := []string{"-server", ts.URL, "add", "-amount", "12.3", "-category", "Food", "-description", "lunch", "-date", "2024-03-15", "-key", "cli-1"}
	require.NoError(t, run(ctx, args, &out))
	assert.Contains(t, out.String(), "created: #1 12.30 Food")

	out.Reset()
	require.NoError(t, run(ctx, args, &out))
	assert.Contains(t, out.String(), "already recorded: #1")

	out.Reset()
	require.NoError(t, run(ctx, []string{"-server", ts.URL, "list"}, &out))
	assert.Contains(t, out.String(), "lunch")
	assert.Contains(t, out.String(), "2024-03-15")
}

func TestAddRejectsInvalidInput(t *testing.T) {
	ts := newAPIServer(t)

	var out bytes.Buffer
	err := run(context.Background(), []string{"-server", ts.URL, "add", "-amount", "abc", "-category", "Food", "-description", "x"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-input")
}

func TestUnknownCommand(t *testing.T) {
	assert.Error(t, run(context.Background(), []string{"frobnicate"}, &bytes.Buffer{}))
	assert.Error(t, run(context.Background(), nil, &bytes.Buffer{}))
}
