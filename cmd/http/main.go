package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/huy-cyno/workflow-builder-poc/internal/bootstrap"
	"github.com/huy-cyno/workflow-builder-poc/internal/config"
	"github.com/huy-cyno/workflow-builder-poc/internal/transport/httptransport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build workflow stack", zap.Error(err))
	}

	h := httptransport.NewHandler(stack.Service,
		httptransport.WithLogger(logger),
		httptransport.WithMetrics(promhttp.HandlerFor(stack.Registry, promhttp.HandlerOpts{})),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Logged(h.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := stack.Close(shutdownCtx); err != nil {
		logger.Warn("stack shutdown", zap.Error(err))
	}
}
