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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet/internal/config"
	"wallet/internal/db"
	"wallet/internal/events"
	"wallet/internal/handlers"
	"wallet/internal/logger"
	"wallet/internal/services"
	"wallet/internal/store"
	"wallet/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			zlog.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	database, err := db.Connect(connectCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	hub := websocket.NewHub(zlog.Named("ws"))
	var notifier services.BalanceNotifier = hub
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Fatal("failed to reach redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		notifier = events.NewPublisher(rdb, zlog.Named("events"))
		relay := events.NewRelay(rdb, hub, zlog.Named("events"))
		go func() {
			if err := relay.Run(ctx); err != nil {
				zlog.Error("balance relay stopped", zap.Error(err))
			}
		}()
	}

	accounts := store.NewAccountStore(database)
	ledger := store.NewLedgerStore(database)
	audit := store.NewAuditStore(database)
	transfers := services.NewTransferService(db.NewTxRunner(database), accounts, ledger, audit, notifier, services.TransferConfig{
		Currency:        cfg.Currency,
		StartingBalance: cfg.StartingBalanceMinor,
		MaxAttempts:     cfg.TransferMaxAttempts,
		RetryBackoff:    cfg.TransferRetryBackoff,
		StorageTimeout:  cfg.StorageTimeout,
	}, zlog.Named("transfers"))
	statements := services.NewStatementService(accounts, ledger, cfg.StorageTimeout, zlog.Named("statements"))

	handler := handlers.New(cfg, transfers, statements, hub, zlog.Named("http"))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("wallet API listening", zap.String("addr", server.Addr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
		os.Exit(1)
	}
}

func migrateUp(databaseURL string) error {
	migrator, err := db.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Up()
}
