package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mahaj/community-chat/pkg/activity"
	"github.com/mahaj/community-chat/pkg/auth"
	"github.com/mahaj/community-chat/pkg/config"
	"github.com/mahaj/community-chat/pkg/db"
	"github.com/mahaj/community-chat/pkg/presence"
	"github.com/mahaj/community-chat/pkg/snowflake"
	"github.com/mahaj/community-chat/pkg/store"
	"github.com/mahaj/community-chat/pkg/users"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// server holds what the API handlers read from and write to.
type server struct {
	accounts *users.Service
	messages store.MessageStore
	presence presence.Tracker
	activity activity.Store
	log      *slog.Logger
}

func (s *server) routes(verifier auth.Verifier) http.Handler {
	protect := auth.Middleware(verifier)
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("POST /register", s.register)
	mux.HandleFunc("POST /login", s.login)

	mux.Handle("GET /history", protect(http.HandlerFunc(s.history)))
	mux.Handle("GET /communities/{id}/users", protect(http.HandlerFunc(s.presentUsers)))
	mux.Handle("GET /communities/{id}/activity", protect(http.HandlerFunc(s.communityActivity)))

	mux.Handle("GET /users/profile", protect(http.HandlerFunc(s.profile)))
	mux.Handle("PUT /users/profile", protect(http.HandlerFunc(s.updateProfile)))
	mux.Handle("PUT /users/{id}/follow", protect(http.HandlerFunc(s.follow)))
	mux.Handle("GET /users/{id}/isFollowing", protect(http.HandlerFunc(s.isFollowing)))

	return CORSMiddleware(mux)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	session, err := db.NewSession(cfg.ScyllaHostList(), cfg.ScyllaKeyspace, logger)
	if err != nil {
		logger.Error("Failed to connect to ScyllaDB", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Error("Invalid snowflake node", "error", err)
		os.Exit(1)
	}

	var tracker presence.Tracker = presence.Nop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		tracker = presence.NewRedisTracker(rdb)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	s := &server{
		accounts: users.NewService(users.NewScyllaRepository(session), tokens),
		messages: store.NewScyllaStore(session, node, logger),
		presence: tracker,
		activity: activity.NewScyllaStore(session),
		log:      logger,
	}
	httpServer := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           s.routes(tokens),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API Service Starting", "addr", cfg.APIAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("API stopped with error", "error", err)
	}
}
