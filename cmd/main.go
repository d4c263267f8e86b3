package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snippetlab/collab-service/config"
	"github.com/snippetlab/collab-service/internal/access"
	"github.com/snippetlab/collab-service/internal/auth"
	"github.com/snippetlab/collab-service/internal/postgres"
	"github.com/snippetlab/collab-service/internal/registry"
	"github.com/snippetlab/collab-service/internal/relay"
	httpx "github.com/snippetlab/collab-service/internal/transport/http"
	"github.com/snippetlab/collab-service/internal/transport/ws"
	"github.com/snippetlab/collab-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting collab-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- identity verifier ---
	pub, err := auth.LoadRSAPublicKeyFromPEM(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("load jwt public key: %v", err)
	}
	verifier := auth.NewVerifier(pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.ClockSkew, cfg.Auth.CacheTTL)
	defer verifier.Stop()

	// --- access evaluator ---
	projectRepo := postgres.NewProjectRepository(db.Pool)
	evaluator := access.NewGate(access.NewProjectEvaluator(projectRepo), cfg.Access.Timeout)

	// --- registry & relay ---
	reg := registry.New()
	rl := relay.New(reg, evaluator)

	// --- WS Server ---
	wsServer := ws.NewServer(verifier, rl, ws.Config{
		PingEvery:       cfg.WS.PingEvery,
		WriteTimeout:    cfg.WS.WriteTimeout,
		SendQueueSize:   cfg.WS.SendQueueSize,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
	})

	// --- HTTP ---
	handler := httpx.NewHandler(reg)
	router := httpx.NewRouter(handler, verifier, wsServer, db, cfg.HTTP.AllowedOrigins)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- run ---
	errCh := make(chan error, 1)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
