package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"walletwise/internal/core"
)

// IdempotencyKeyHeader carries the client's token for a create.
const IdempotencyKeyHeader = "Idempotency-Key"

// RequestBodyParser reads a create body sent as JSON or as form data.
// JSON numbers keep their literal text so amounts never pass through float64.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once. Callers cap it with
// http.MaxBytesReader beforehand.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(r.Body)
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.isJSON(trimmed) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("decode JSON body: %w", err)
			return p.err
		}
		if dec.More() {
			p.err = fmt.Errorf("decode JSON body: trailing data")
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	if p.err != nil {
		p.err = fmt.Errorf("decode form body: %w", p.err)
	}
	return p.err
}

func (p *RequestBodyParser) isJSON(body []byte) bool {
	if mt, _, err := mime.ParseMediaType(p.contentType); err == nil {
		if mt == "application/json" {
			return true
		}
		if mt == "application/x-www-form-urlencoded" {
			return false
		}
	}
	return body[0] == '{'
}

// Get returns a field from the parsed body, trimmed and stripped of control characters.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// CreateRequest assembles the raw create request. The header token wins
// over an idempotency_key body field.
func (p *RequestBodyParser) CreateRequest(headerKey string) core.CreateRequest {
	key := strings.TrimSpace(headerKey)
	if key == "" {
		key = p.Get("idempotency_key")
	}
	return core.CreateRequest{
		Amount:         p.Get("amount"),
		Category:       p.Get("category"),
		Description:    p.Get("description"),
		Date:           p.Get("date"),
		IdempotencyKey: key,
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
