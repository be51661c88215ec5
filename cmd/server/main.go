package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/paysplit/internal/auth"
	"github.com/mmynk/paysplit/internal/chain"
	"github.com/mmynk/paysplit/internal/config"
	"github.com/mmynk/paysplit/internal/metrics"
	"github.com/mmynk/paysplit/internal/middleware"
	"github.com/mmynk/paysplit/internal/service"
	"github.com/mmynk/paysplit/internal/settlement"
	"github.com/mmynk/paysplit/internal/splits"
	"github.com/mmynk/paysplit/internal/storage"
	"github.com/mmynk/paysplit/internal/storage/bolt"
	"github.com/mmynk/paysplit/internal/storage/sqlite"
	"github.com/mmynk/paysplit/pkg/api"
	"github.com/mmynk/paysplit/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"), os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Storage initialized", "driver", cfg.Database.Driver, "database", cfg.Database.Path)

	limits, err := cfg.ValidationLimits()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var adapter chain.Adapter = chain.NewSimulated(cfg.Chain.SimulatedDelay.Duration)
	if cfg.Chain.SubmitRate > 0 {
		adapter = chain.NewRateLimited(adapter, cfg.Chain.SubmitRate, cfg.Chain.SubmitBurst)
	}

	orch := settlement.New(store, adapter, settlement.Config{
		FeeBasisPoints:       cfg.Settlement.FeeBasisPoints,
		GasBufferBasisPoints: cfg.Settlement.GasBufferBasisPoints,
		Wait:                 cfg.Settlement.WaitPolicy(),
		Limits:               limits,
	}, settlement.WithMetrics(m), settlement.WithLogger(logger))
	splitRegistry := splits.NewRegistry(store, limits,
		splits.WithWithholding(cfg.Settlement.FeeBasisPoints, cfg.Settlement.GasBufferBasisPoints),
		splits.WithLogger(logger))

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Duration)
	authenticator := auth.NewPasswordAuthenticator(store, cfg.Auth.BcryptCost)

	// Auth runs before logging so the log line carries the caller.
	logged := middleware.LoggingInterceptor()
	mux := http.NewServeMux()
	mux.Handle(api.NewAuthServiceHandler(
		service.NewAuthService(authenticator, jwtManager, logger),
		connect.WithInterceptors(logged),
	))
	mux.Handle(api.NewSplitServiceHandler(
		service.NewSplitService(splitRegistry, logger),
		connect.WithInterceptors(middleware.OptionalAuth(jwtManager), logged),
	))
	mux.Handle(api.NewEscrowServiceHandler(
		service.NewEscrowService(orch, splitRegistry, logger),
		connect.WithInterceptors(middleware.RequireAuth(jwtManager), logged),
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	servers := []*http.Server{{
		Addr: cfg.Listen,
		// h2c serves HTTP/2 without TLS for Connect and gRPC clients.
		Handler:           h2c.NewHandler(corsMiddleware(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsListen == "" {
		mux.Handle("/metrics", metricsHandler)
	} else {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Server listening", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func openStore(cfg config.DatabaseConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverBolt:
		store, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
