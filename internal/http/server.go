package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"billetera/internal/auth"
	"billetera/internal/core"
	"billetera/internal/ledger"
	"billetera/internal/log"
	"billetera/internal/middleware/ratelimit"
	"billetera/internal/middleware/security"
	"billetera/internal/middleware/trace"
)

// LedgerService is the part of the ledger the API drives.
type LedgerService interface {
	Record(ctx context.Context, req ledger.RecordRequest) (core.Transaction, error)
	Delete(ctx context.Context, transactionID string) (core.Transaction, error)
	Transaction(ctx context.Context, transactionID string) (core.Transaction, error)
	CurrentBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
}

type CategoryService interface {
	ListByType(ctx context.Context, t core.TxType) ([]core.Category, error)
}

// Deps are the collaborators of the server. Authenticate may be nil when
// Users needs no request middleware, as with auth.Static.
type Deps struct {
	Ledger       LedgerService
	Categories   CategoryService
	Users        auth.Provider
	Authenticate func(http.Handler) http.Handler
	Ready        func(ctx context.Context) error
	Logger       *log.Logger
	RateLimit    ratelimit.Config
	Now          func() time.Time
}

type Server struct {
	http.Server

	ledger     LedgerService
	categories CategoryService
	users      auth.Provider
	ready      func(ctx context.Context) error
	logger     *log.Logger
	now        func() time.Time

	detector     *security.Detector
	tracer       *trace.Middleware
	writeLimiter *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Shutdown must be called to stop the rate limiter sweep.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		ledger:       deps.Ledger,
		categories:   deps.Categories,
		users:        deps.Users,
		ready:        deps.Ready,
		logger:       logger.WithComponent(log.ComponentHTTP),
		now:          now,
		detector:     security.NewDetector(),
		writeLimiter: ratelimit.NewLimiter(deps.RateLimit),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(deps.Authenticate),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(authenticate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Handler)
	r.Use(middleware.Recoverer)
	r.Use(s.detector.Handler)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Handler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such route").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, CodeInvalidInput, "method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		if authenticate != nil {
			r.Use(authenticate)
		}
		r.Use(s.requireUser)

		r.Get("/me", s.handleMe)
		r.Get("/categories", s.handleCategories)
		r.Get("/balance", s.handleBalance)

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.With(s.writeLimiter.Middleware(s.detector.ExtractClientIP)).Post("/", s.handleCreateTransaction)
			r.With(s.writeLimiter.Middleware(s.detector.ExtractClientIP)).Delete("/{id}", s.handleDeleteTransaction)
		})

		r.Get("/breakdown", s.handleBreakdown)
		r.Get("/summary", s.handleSummary)
		r.Get("/export.xlsx", s.handleExport)
	})
	return r
}

type userKey struct{}

// requireUser resolves the caller once per request and refuses anonymous
// calls.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.users == nil {
			ErrorResponse(http.StatusUnauthorized, CodeUnauthorized, "no user").Write(w)
			return
		}
		u, ok := s.users.CurrentUser(r.Context())
		if !ok {
			ErrorResponse(http.StatusUnauthorized, CodeUnauthorized, "no user").Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, u)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(ctx context.Context) core.User {
	u, _ := ctx.Value(userKey{}).(core.User)
	return u
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.writeLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics reports request counters for the readiness probe.
func (s *Server) Metrics() (trace.Metrics, security.DetectionMetrics, int64) {
	return s.tracer.GetMetrics(), s.detector.GetMetrics(), s.writeLimiter.Rejected()
}
