// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"walletwise/internal/core"
	"walletwise/internal/log"
	"walletwise/internal/middleware/ratelimit"
	"walletwise/internal/middleware/security"
	"walletwise/internal/middleware/trace"
	"walletwise/internal/services"
)

// ExpenseAPI is the service surface the handlers need.
type ExpenseAPI interface {
	CreateExpense(ctx context.Context, req core.CreateRequest) (core.Expense, services.Outcome, error)
	ListExpenses(ctx context.Context, values url.Values) ([]core.Expense, error)
	Categories() []core.Category
	Ping(ctx context.Context) error
}

// Config holds transport settings.
type Config struct {
	Addr               string
	CORSAllowedOrigin  string
	RateLimitPerMinute int
	MaxBodyBytes       int64
	Logger             *log.Logger
}

type Server struct {
	http.Server
	api     ExpenseAPI
	logger  *log.Logger
	maxBody int64

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime   time.Time
	created  atomic.Int64
	replayed atomic.Int64
}

func NewServer(cfg Config, api ExpenseAPI) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}

	detector := security.NewDetector()
	s := &Server{
		api:              api,
		logger:           logger,
		maxBody:          maxBody,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc("POST "+prefix+"/expenses", s.handleCreateExpense)
		mux.HandleFunc("GET "+prefix+"/expenses", s.handleListExpenses)
		mux.HandleFunc("GET "+prefix+"/categories", s.handleCategories)
	}
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	var handler http.Handler = mux
	handler = s.detectSuspicious(handler)
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimited, http.MethodPost)(handler)
	handler = security.CORSMiddleware(cfg.CORSAllowedOrigin)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// detectSuspicious logs probing requests. It never blocks them.
func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request detected",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, ErrKindRateLimited, "rate limit exceeded, retry later", "").Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
