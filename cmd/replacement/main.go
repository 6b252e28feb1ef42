// Package main запускает HTTP-сервер сервиса замены товаров.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/order-replacement/internal/config"
	"github.com/mmeshcher/order-replacement/internal/handler"
	"github.com/mmeshcher/order-replacement/internal/middleware"
	"github.com/mmeshcher/order-replacement/internal/notify"
	"github.com/mmeshcher/order-replacement/internal/repository"
	"github.com/mmeshcher/order-replacement/internal/service"
	"github.com/mmeshcher/order-replacement/internal/shopify"
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

	if cfg.ShopDomain == "" {
		sugar.Warn("shop domain is not set, order platform calls will fail")
	}
	platform := shopify.NewClient(cfg.ShopDomain, cfg.ShopAccessToken, cfg.ShopAPIVersion, cfg.PlatformTimeout)

	var notifier service.Notifier
	if cfg.EmailAPIURL != "" {
		notifier = notify.NewEmailClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom, cfg.PlatformTimeout, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	svc := service.NewService(repo, platform, notifier, cfg.Store, service.Options{
		PlatformTimeout: cfg.PlatformTimeout,
		Workers:         cfg.ReconcileWorkers,
		StaffNote:       cfg.StaffNote,
	}, logger)
	defer svc.Close()

	if cfg.StaffSecret == "" {
		sugar.Warn("STAFF_SECRET is not set, staff tokens are valid only until restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.StaffSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting replacement server", "addr", cfg.RunAddress, "shop", cfg.ShopDomain)
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
