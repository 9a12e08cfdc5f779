package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	accountcmd "github.com/novap2p/novap2p/account-service/internal/command"
	"github.com/novap2p/novap2p/account-service/internal/handler"
	accountqry "github.com/novap2p/novap2p/account-service/internal/query"
	"github.com/novap2p/novap2p/account-service/internal/repository"
	"github.com/novap2p/novap2p/account-service/migrations"
	"github.com/novap2p/novap2p/shared/auth"
	"github.com/novap2p/novap2p/shared/config"
	"github.com/novap2p/novap2p/shared/database"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/logging"
	"github.com/novap2p/novap2p/shared/metrics"
	"github.com/novap2p/novap2p/shared/middleware"
	redisClient "github.com/novap2p/novap2p/shared/redis"
	"github.com/novap2p/novap2p/shared/server"
)

const serviceName = "account-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("account service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load("ACCOUNT_SERVICE")
	if err != nil {
		return err
	}
	logging.Setup(serviceName, cfg.LogFormat)

	// Database connection (write store)
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, migrations.FS, ".", migrations.VersionTable); err != nil {
		return err
	}

	// Redis connection (read model store + event streaming)
	rdb, err := redisClient.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	verifier := auth.NewVerifier(tokens, auth.NewRevocationList(rdb))

	// --- CQRS wiring ---
	publisher := events.NewPublisher(rdb)
	feed := events.NewFeed(rdb)

	writeRepo := repository.NewAccountWriteRepository(db)
	readRepo := repository.NewAccountReadRepository(db, rdb)

	commandSvc := accountcmd.NewAccountCommandService(writeRepo, readRepo, publisher)
	querySvc := accountqry.NewAccountQueryService(readRepo)

	m := metrics.New(serviceName)
	accountHandler := handler.NewAccountHandler(commandSvc, querySvc, feed, m)

	router := server.NewRouter(m, cfg.IsProduction())
	accountHandler.Register(router.Group("/v1/accounts", middleware.AuthMiddleware(verifier)))

	// Cache writes on the request path are best effort; replaying the stream
	// repairs any view a failed write left stale.
	subscriber := events.NewSubscriber(rdb, events.SubscriberConfig{
		Group:    "account-service-views",
		Consumer: cfg.Consumer("account-consumer"),
		Stream:   events.AccountEventsStream,
		Handler:  commandSvc.HandleAccountEvent,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx, cfg.Addr("8083"), router, cfg.ShutdownTimeout)
	})
	return g.Wait()
}
