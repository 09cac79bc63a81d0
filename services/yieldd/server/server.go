package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"yieldsplit/core/engine"
	"yieldsplit/core/events"
	"yieldsplit/observability/metrics"
	"yieldsplit/services/yieldd/auth"
	"yieldsplit/services/yieldd/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       RateLimit
}

// Server exposes the engine over HTTP.
type Server struct {
	cfg     Config
	engine  *engine.Engine
	journal *storage.Journal
	stream  *events.Broadcaster
	auth    *auth.Authenticator
	limiter *RateLimiter
	metrics *metrics.HTTPMetrics
	logger  *slog.Logger
	router  http.Handler
}

// New constructs the server. journal and stream may be nil, which disables
// the history and live event endpoints.
func New(cfg Config, eng *engine.Engine, journal *storage.Journal, stream *events.Broadcaster, authn *auth.Authenticator, logger *slog.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine required")
	}
	if authn == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		engine:  eng,
		journal: journal,
		stream:  stream,
		auth:    authn,
		limiter: NewRateLimiter(cfg.RateLimit),
		metrics: metrics.HTTP(),
		logger:  logger,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(s.observe)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.Middleware).Get("/ws/events", s.handleStream)

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(s.limiter.Middleware)
			public.Get("/rate", s.handleRate)
			public.Get("/series", s.handleSeries)
			public.Get("/accounts/{address}", s.handleAccount)
			public.Get("/pt/allowance", s.handleAllowance)
			public.Get("/events", s.handleEvents)
			public.Get("/receipts/{hash}", s.handleReceipt)
		})
		api.Group(func(user chi.Router) {
			user.Use(s.auth.Middleware())
			user.Use(s.limiter.Middleware)
			user.Post("/deposit", s.handleDeposit)
			user.Post("/claim", s.handleClaim)
			user.Post("/rate/refresh", s.handleRateRefresh)
			user.Post("/redeem", s.handleRedeem)
			user.Post("/pt/transfer", s.handlePrincipalTransfer)
			user.Post("/pt/approve", s.handlePrincipalApprove)
			user.Post("/pt/transfer-from", s.handlePrincipalTransferFrom)
			user.Post("/yt/transfer", s.handleYieldTransfer)
			user.Post("/yt/burn", s.handleYieldBurn)
			user.Post("/vault/deposit", s.handleVaultDeposit)
			user.Post("/vault/withdraw", s.handleVaultWithdraw)
		})
		api.Group(func(admin chi.Router) {
			admin.Use(s.auth.Middleware(auth.ScopeAdmin))
			admin.Use(s.limiter.Middleware)
			admin.Post("/admin/fund", s.handleFund)
			admin.Post("/admin/rollover", s.handleRollover)
			admin.Post("/admin/vault-yield", s.handleVaultYield)
		})
	})

	return otelhttp.NewHandler(r, "yieldd.http")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", slog.String("address", s.cfg.ListenAddress))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

type requestIDKey struct{}

const requestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFrom returns the request id assigned to ctx.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.Observe(route, status, time.Since(started))
		s.logger.Debug("request served",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(started)))
	})
}
