package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/novap2p/novap2p/shared/auth"
	"github.com/novap2p/novap2p/shared/config"
	"github.com/novap2p/novap2p/shared/database"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/logging"
	"github.com/novap2p/novap2p/shared/metrics"
	"github.com/novap2p/novap2p/shared/middleware"
	redisClient "github.com/novap2p/novap2p/shared/redis"
	"github.com/novap2p/novap2p/shared/server"
	usercmd "github.com/novap2p/novap2p/user-service/internal/command"
	"github.com/novap2p/novap2p/user-service/internal/handler"
	userqry "github.com/novap2p/novap2p/user-service/internal/query"
	"github.com/novap2p/novap2p/user-service/internal/repository"
	"github.com/novap2p/novap2p/user-service/migrations"
)

const serviceName = "user-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("user service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load("USER_SERVICE")
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
	authMiddleware := middleware.AuthMiddleware(auth.NewVerifier(tokens, auth.NewRevocationList(rdb)))

	// --- CQRS wiring ---
	publisher := events.NewPublisher(rdb)

	writeRepo := repository.NewUserWriteRepository(db)
	readRepo := repository.NewUserReadRepository(db, rdb)

	commandSvc := usercmd.NewUserCommandService(writeRepo, readRepo, publisher)
	querySvc := userqry.NewUserQueryService(readRepo)

	userHandler := handler.NewUserHandler(commandSvc, querySvc)

	router := server.NewRouter(metrics.New(serviceName), cfg.IsProduction())
	v1 := router.Group("/v1/users")
	{
		v1.POST("", userHandler.CreateUser)
		v1.GET("", authMiddleware, userHandler.ListUsers)
		v1.GET("/:userId", authMiddleware, userHandler.GetUser)
	}

	subscriber := events.NewSubscriber(rdb, events.SubscriberConfig{
		Group:    "user-service-group",
		Consumer: cfg.Consumer("user-consumer"),
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
		return server.Run(ctx, cfg.Addr("8082"), router, cfg.ShutdownTimeout)
	})
	return g.Wait()
}
