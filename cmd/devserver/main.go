// Command exam-devserver serves an in-memory exam backend for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/exam-client/internal/fakeapi"
	"github.com/and161185/exam-client/internal/limiter"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses flags, seeds the administrator and serves until SIGINT/SIGTERM.
func main() {
	// Flags
	addr := flag.String("addr", ":3005", "listen address")
	jwtKey := flag.String("jwt-key", os.Getenv("EXAM_DEV_JWT_KEY"), "HS256 signing key (required)")
	accessTTL := flag.Duration("access-ttl", 24*time.Hour, "access token TTL")
	adminUser := flag.String("admin-user", "admin", "seeded administrator username (empty to skip)")
	adminPass := flag.String("admin-pass", "123456", "seeded administrator password")
	metrics := flag.Bool("metrics", false, "expose /metrics")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", *addr),
	)

	if *jwtKey == "" {
		logger.Fatal("missing jwt signing key (--jwt-key or EXAM_DEV_JWT_KEY)")
	}

	srv, err := fakeapi.New(fakeapi.Config{
		SignKey:       []byte(*jwtKey),
		AccessTTL:     *accessTTL,
		AdminUsername: *adminUser,
		AdminPassword: *adminPass,
		Limiter:       limiter.NewDefault(),
	}, logger)
	if err != nil {
		logger.Fatal("fakeapi.New", zap.Error(err))
	}

	root := chi.NewRouter()
	if *metrics {
		root.Handle("/metrics", promhttp.Handler())
	}
	root.Mount("/", srv.Handler())

	hs := &http.Server{
		Addr:              *addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		errCh <- hs.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forced shutdown", zap.Error(err))
			_ = hs.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
