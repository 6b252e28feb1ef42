// Package main запускает утилиту оператора replacectl.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/mmeshcher/order-replacement/internal/cli"
	"github.com/mmeshcher/order-replacement/internal/config"
	"github.com/mmeshcher/order-replacement/internal/middleware"
	"github.com/mmeshcher/order-replacement/internal/notify"
	"github.com/mmeshcher/order-replacement/internal/repository"
	"github.com/mmeshcher/order-replacement/internal/service"
	"github.com/mmeshcher/order-replacement/internal/shopify"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	open := func(ctx context.Context) (cli.Service, func(), error) {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, nil, err
		}

		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			return nil, nil, err
		}

		platform := shopify.NewClient(cfg.ShopDomain, cfg.ShopAccessToken, cfg.ShopAPIVersion, cfg.PlatformTimeout)
		svc := service.NewService(repo, platform, notify.NewLogNotifier(logger), cfg.Store, service.Options{
			PlatformTimeout: cfg.PlatformTimeout,
			Workers:         cfg.ReconcileWorkers,
			StaffNote:       cfg.StaffNote,
		}, logger)

		return svc, func() { _ = svc.Close() }, nil
	}

	issue := func(staff string, ttl time.Duration) (string, error) {
		cfg, err := config.FromEnv()
		if err != nil {
			return "", err
		}
		if cfg.StaffSecret == "" {
			return "", errors.New("STAFF_SECRET is not set")
		}
		return middleware.NewAuthMiddleware(cfg.StaffSecret).IssueToken(staff, ttl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(open, issue).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		_ = logger.Sync()
		os.Exit(cli.GetExitCode(err))
	}
}
