package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"davi/internal/auth"
	"davi/internal/log"
	"davi/internal/middleware/ratelimit"
	"davi/internal/middleware/security"
	"davi/internal/middleware/trace"
	"davi/internal/services"
)

const readyTimeout = 2 * time.Second

// Options tunes the server middleware. Zero values fall back to defaults.
type Options struct {
	RateLimit ratelimit.Config
	Headers   *security.HeadersConfig
	// TrustedProxies extend the private ranges allowed to forward client
	// addresses. Invalid entries are logged and skipped.
	TrustedProxies []string
	Logger         *log.Logger
}

type Server struct {
	http.Server
	finance  *services.Finance
	tokens   *auth.TokenManager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, finance *services.Finance, tokens *auth.TokenManager, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err.Error())
		}
	}
	s := &Server{
		finance:  finance,
		tokens:   tokens,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	s.public(mux, "POST /api/users", s.handleCreateUser)
	s.public(mux, "POST /api/sessions", s.handleCreateSession)

	s.private(mux, "GET /api/profile", s.handleGetProfile)
	s.private(mux, "PUT /api/profile", s.handleUpdateProfile)
	s.private(mux, "GET /api/dashboard", s.handleDashboard)

	s.private(mux, "GET /api/movements", s.handleListMovements)
	s.private(mux, "POST /api/movements", s.handleRecordMovement)
	s.private(mux, "POST /api/distributions", s.handleDistribute)

	s.private(mux, "GET /api/buckets", s.handleListBuckets)
	s.private(mux, "POST /api/buckets", s.handleCreateBucket)
	s.private(mux, "PUT /api/buckets/{id}", s.handleUpdateBucket)
	s.private(mux, "DELETE /api/buckets/{id}", s.handleDeleteBucket)
	s.private(mux, "PUT /api/buckets/{id}/balance", s.handleUpdateBucketBalance)

	s.private(mux, "GET /api/giants", s.handleListGiants)
	s.private(mux, "POST /api/giants", s.handleCreateGiant)
	s.private(mux, "DELETE /api/giants/{id}", s.handleDeleteGiant)
	s.private(mux, "POST /api/giants/{id}/payments", s.handleRecordGiantPayment)
	s.private(mux, "GET /api/giants/{id}/forecast", s.handleForecastGiant)

	s.private(mux, "GET /api/bills", s.handleListBills)
	s.private(mux, "POST /api/bills", s.handleCreateBill)
	s.private(mux, "PUT /api/bills/{id}/paid", s.handleMarkBillPaid)
	s.private(mux, "DELETE /api/bills/{id}", s.handleDeleteBill)

	var handler http.Handler = mux
	handler = log.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(headers).Middleware(handler)
	handler = detector.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// public registers a rate-limited route that needs no session.
func (s *Server) public(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.rateLimit(h))
}

// private registers a rate-limited route behind bearer authentication.
func (s *Server) private(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.rateLimit(auth.Middleware(s.tokens)(h)))
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return s.limiter.Middleware(s.detector.ExtractClientIP, func(r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
	})(next)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

// handleReady reports 503 until the repository answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.finance.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		NewJSONResponse().
			Status(http.StatusServiceUnavailable).
			Body(map[string]string{"status": "unavailable"}).
			Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
