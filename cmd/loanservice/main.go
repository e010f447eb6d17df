// Package main запускает HTTP-сервер сервиса выдачи книг.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ironlibrary/loan-service/internal/config"
	"github.com/ironlibrary/loan-service/internal/directory"
	"github.com/ironlibrary/loan-service/internal/events"
	"github.com/ironlibrary/loan-service/internal/handler"
	"github.com/ironlibrary/loan-service/internal/repository"
	"github.com/ironlibrary/loan-service/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	users := directory.NewUserClient(cfg.UserServiceAddress)
	books := directory.NewBookClient(cfg.BookServiceAddress)

	hub := events.NewHub()
	defer hub.Close()

	dispatcher := events.NewDispatcher(hub, books, logger)

	svc := service.NewService(repo, users, books, hub, logger)
	defer svc.Close()

	h := handler.NewHandler(svc, hub, logger)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового обхода просроченных выдач
	svc.StartOverdueSweeps(ctx, cfg.OverdueSweepInterval)

	// Запуск диспетчера доменных событий
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting loan service server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
