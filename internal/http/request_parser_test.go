package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParser(contentType, body string) *RequestBodyParser {
	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return NewRequestBodyParser(req)
}

func TestRequestBodyParser_JSON(t *testing.T) {
	p := newParser("application/json; charset=utf-8",
		`{"amount": 12.30, "category":" Food ", "description":"a\u0000b", "idempotency_key":"body"}`)
	require.NoError(t, p.Parse())
	assert.True(t, p.IsJSON())

	// The literal number text survives decoding.
	assert.Equal(t, "12.30", p.Get("amount"))
	assert.Equal(t, "Food", p.Get("category"))
	assert.Equal(t, "ab", p.Get("description"))
	assert.Empty(t, p.Get("missing"))
}

func TestRequestBodyParser_SniffsJSONWithoutContentType(t *testing.T) {
	p := newParser("", `{"amount":"5"}`)
	require.NoError(t, p.Parse())
	assert.True(t, p.IsJSON())
	assert.Equal(t, "5", p.Get("amount"))
}

func TestRequestBodyParser_Form(t *testing.T) {
	p := newParser("application/x-www-form-urlencoded", "amount=3%2C50&category=Home")
	require.NoError(t, p.Parse())
	assert.False(t, p.IsJSON())
	assert.Equal(t, "3,50", p.Get("amount"))
	assert.Equal(t, "Home", p.Get("category"))
}

func TestRequestBodyParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		ct   string
		body string
	}{
		{"truncated json", "application/json", `{"amount":`},
		{"trailing data", "application/json", `{"amount":"1"} {"amount":"2"}`},
		{"json array", "application/json", `[1,2]`},
		{"bad form escape", "application/x-www-form-urlencoded", "amount=%zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(tt.ct, tt.body)
			assert.Error(t, p.Parse())
			// Parse is memoized.
			assert.Error(t, p.Parse())
		})
	}
}

func TestRequestBodyParser_CreateRequestKeyPrecedence(t *testing.T) {
	p := newParser("application/json", `{"amount":"1","idempotency_key":"from-body"}`)
	require.NoError(t, p.Parse())

	assert.Equal(t, "from-header", p.CreateRequest(" from-header ").IdempotencyKey)
	assert.Equal(t, "from-body", p.CreateRequest("").IdempotencyKey)
	assert.Equal(t, "1", p.CreateRequest("").Amount)
}
