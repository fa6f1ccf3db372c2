package http

import (
	"encoding/json"
	"net/http"
	"time"

	"walletwise/internal/core"
)

// Error kinds reported in the "error" field of a failure body.
const (
	ErrKindInvalidInput   = "invalid-input"
	ErrKindStorageFailure = "storage-failure"
	ErrKindRateLimited    = "rate-limited"
)

// ReplayedHeader marks a 200 response that returned an existing record.
const ReplayedHeader = "Idempotent-Replayed"

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body != nil {
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

// ErrorBody is the JSON shape of every failure.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func ErrorResponse(statusCode int, kind, message, field string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: kind, Message: message, Field: field})
}

func BadRequestError(message, field string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, ErrKindInvalidInput, message, field)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, ErrKindStorageFailure, "the ledger store is unavailable", "")
}

// ExpenseResponse is the wire form of a stored record.
type ExpenseResponse struct {
	ID             int64     `json:"id"`
	AmountMinor    int64     `json:"amount_minor"`
	Amount         string    `json:"amount"`
	Category       string    `json:"category"`
	Description    string    `json:"description"`
	Date           string    `json:"date"`
	CreatedAt      time.Time `json:"created_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func toExpenseResponse(e core.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:             e.ID,
		AmountMinor:    e.Amount.Cents,
		Amount:         e.Amount.String(),
		Category:       string(e.Category),
		Description:    e.Description,
		Date:           e.Date.String(),
		CreatedAt:      e.CreatedAt.UTC(),
		IdempotencyKey: e.IdempotencyKey,
	}
}

func toExpenseResponses(expenses []core.Expense) []ExpenseResponse {
	out := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	return out
}
