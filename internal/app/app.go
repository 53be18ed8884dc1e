package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/heartmarshall/treecleaner/internal/auth"
	"github.com/heartmarshall/treecleaner/internal/config"
	"github.com/heartmarshall/treecleaner/internal/transport/middleware"
	"github.com/heartmarshall/treecleaner/internal/transport/rest"
)

// Run is the server entry point. It loads configuration, opens the record
// store, serves the REST API and shuts down gracefully when ctx is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)
	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Bool("auth_required", cfg.Auth.Required),
	)

	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer backend.Close()

	limiter := middleware.NewRateLimiter(time.Minute)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      NewHandler(cfg, backend, limiter, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// NewHandler assembles the middleware chain and route table for backend.
func NewHandler(cfg *config.Config, backend *Backend, limiter *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	routerCfg := rest.RouterConfig{Action: limiter.Limit(cfg.Server.ActionRateLimit)}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Auth.Required {
		routerCfg.Mutate = middleware.RequireOperator()
	}

	mux := rest.NewRouter(routerCfg, rest.Handlers{
		Health:  rest.NewHealthHandler(backend.Store, backend.Component, Version),
		Scan:    rest.NewScanHandler(backend.Scan, logger),
		Issues:  rest.NewIssueHandler(backend.Issues, logger),
		Actions: rest.NewActionHandler(backend.Remediation, logger),
		Rules:   rest.NewRuleHandler(backend.Remediation, logger),
	})

	var authn middleware.Middleware
	if cfg.Auth.OperatorSecret != "" {
		authn = middleware.Auth(auth.NewOperatorTokens(cfg.Auth.OperatorSecret, cfg.Auth.Issuer))
	}
	return middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.CORS(cfg.CORS),
		authn,
		middleware.Logger(logger),
		middleware.Metrics(),
	)(mux)
}
