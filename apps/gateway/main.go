package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mahaj/community-chat/pkg/auth"
	"github.com/mahaj/community-chat/pkg/chat"
	"github.com/mahaj/community-chat/pkg/config"
	"github.com/mahaj/community-chat/pkg/metrics"
	"github.com/mahaj/community-chat/pkg/users"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := openDependencies(cfg, logger)
	if err != nil {
		logger.Error("Failed to start gateway", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error("Failed to release dependencies", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	accounts := users.NewService(users.NewScyllaRepository(deps.session), tokens)
	relay := chat.NewRelay(
		auth.NewAuthenticator(tokens, accounts, logger),
		deps.messages,
		chat.NewRegistry(),
		deps.presence,
		deps.publisher,
		metrics.New(registry),
		chat.Options{MaxMessageLength: cfg.MaxMessageLength, EventTimeout: cfg.EventTimeout},
		logger,
	)

	mux := http.NewServeMux()
	mux.Handle("/ws", chat.Handler(relay, cfg.SendBufferSize))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	server := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Gateway Service Starting", "addr", cfg.GatewayAddr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Gateway Service Stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Stop accepting upgrades first, then drain the sockets so no event is
		// still being handled when the dependencies close.
		return multierr.Combine(
			server.Shutdown(shutdownCtx),
			relay.Shutdown(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Gateway stopped with error", "error", err)
	}
}
