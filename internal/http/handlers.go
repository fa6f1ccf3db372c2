package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"walletwise/internal/core"
	"walletwise/internal/log"
	"walletwise/internal/services"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, ErrKindInvalidInput,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), "").Write(w)
			return
		}
		BadRequestError("malformed request body", "").Write(w)
		return
	}

	e, outcome, err := s.api.CreateExpense(ctx, p.CreateRequest(r.Header.Get(IdempotencyKeyHeader)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := NewJSONResponse().Body(toExpenseResponse(e))
	if outcome == services.AlreadyExisted {
		s.appMetrics.replayed.Add(1)
		resp.Status(http.StatusOK).Header(ReplayedHeader, "true")
	} else {
		s.appMetrics.created.Add(1)
		resp.Status(http.StatusCreated)
	}
	resp.Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.api.ListExpenses(r.Context(), r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toExpenseResponses(expenses)).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.api.Categories()).Write(w)
}

// writeError maps service errors to the two client-visible kinds. Storage
// details are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrInvalidInput) {
		var ve *core.ValidationError
		field := ""
		if errors.As(err, &ve) {
			field = ve.Field
		}
		BadRequestError(err.Error(), field).Write(w)
		return
	}

	errorType := log.ErrorTypeInternal
	if errors.Is(err, services.ErrStorage) {
		errorType = log.ErrorTypeDatabase
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, operationFor(r),
		log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).WithErrorType(errorType))
	InternalServerError().Write(w)
}

func operationFor(r *http.Request) string {
	if r.Method == http.MethodPost {
		return log.OpCreate
	}
	return log.OpList
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the ledger store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status, code := "ready", http.StatusOK
	if err := s.api.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["store"] = "unavailable"
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	w.WriteHeader(http.StatusOK)

	writeMetric(w, "http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	writeMetric(w, "expenses_created_total", "counter", "Creates that inserted a new record", s.appMetrics.created.Load())
	writeMetric(w, "expenses_replayed_total", "counter", "Creates answered with an existing record", s.appMetrics.replayed.Load())
	writeMetric(w, "rate_limit_rejections_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.Rejected)
	writeMetric(w, "active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	writeMetric(w, "suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	writeMetric(w, "uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

func writeMetric(w http.ResponseWriter, name, kind, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %d\n\n", name, value)
}
