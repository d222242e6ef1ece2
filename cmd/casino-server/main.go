package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/greenfelt/casino/internal/auth"
	"github.com/greenfelt/casino/internal/callbackserver"
	"github.com/greenfelt/casino/internal/infra"
	"github.com/greenfelt/casino/internal/ledger"
	"github.com/greenfelt/casino/internal/provider"
	"github.com/greenfelt/casino/internal/repository"
	"github.com/greenfelt/casino/internal/session"
	"github.com/greenfelt/casino/internal/signature"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("casino server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("casino-server connected to postgres")

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Signature directions: providerSigner verifies inbound callbacks,
	// casinoSigner signs outbound launch calls.
	providerSigner := signature.New(cfg.ProviderSecret)
	casinoSigner := signature.New(cfg.CasinoSecret)

	catalogRepo := repository.NewCatalogRepository()
	walletRepo := repository.NewWalletRepository()
	sessionRepo := repository.NewSessionRepository()
	txRepo := repository.NewTransactionRepository()
	outboxRepo := repository.NewOutboxRepository()

	engine := ledger.NewEngine(pool, walletRepo, sessionRepo, txRepo, outboxRepo, logger)
	registry := session.NewRegistry(pool, catalogRepo, walletRepo, sessionRepo, outboxRepo, logger)
	providerClient := provider.NewClient(casinoSigner, logger)
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour)

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	if cfg.KafkaEnabled {
		infra.NewOutboxPoller(pool, producer, logger).Start(ctx)
	}

	server := callbackserver.NewServer(
		pool, engine, registry, providerClient, txRepo, providerSigner, jwtMgr, logger)

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("casino-server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("casino-server shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("casino-server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("casino-server shutdown failed: %w", err)
	}

	logger.Info("casino-server stopped gracefully")
	return nil
}
