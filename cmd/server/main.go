package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vncsmyrnk/ideavote/internal/adapters/handler/http"
	"github.com/vncsmyrnk/ideavote/internal/adapters/repository"
	"github.com/vncsmyrnk/ideavote/internal/config"
	"github.com/vncsmyrnk/ideavote/internal/core/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.Open(ctx, repository.Options{
		Driver:      cfg.StorageDriver,
		PostgresDSN: cfg.Postgres.DSN(),
		SQLitePath:  cfg.SQLitePath,
		BoltPath:    cfg.BoltPath,
		Migrate:     true,
	})
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.StorageDriver, "error", err.Error())
		os.Exit(1)
	}
	defer repo.Close()

	ledger := services.NewLedgerService(repo, services.LedgerConfig{
		Deadline:       cfg.Deadline,
		StorageTimeout: cfg.StorageTimeout,
	}, services.SystemClock{}, logger)

	ideaHandler := http.NewIdeaHandler(ledger)
	voteHandler := http.NewVoteHandler(ledger)
	handler := http.NewHandler(ideaHandler, voteHandler, cfg.AllowedOrigins)

	server := &stdhttp.Server{Addr: cfg.HTTPAddr, Handler: handler}

	go func() {
		logger.Info("server listening",
			"addr", cfg.HTTPAddr,
			"driver", cfg.StorageDriver,
			"deadline", cfg.Deadline,
			"closed", ledger.IsClosed(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			logger.Error("server failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTime)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
	}
}
