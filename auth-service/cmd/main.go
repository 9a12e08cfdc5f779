package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	authcmd "github.com/novap2p/novap2p/auth-service/internal/command"
	"github.com/novap2p/novap2p/auth-service/internal/handler"
	authqry "github.com/novap2p/novap2p/auth-service/internal/query"
	"github.com/novap2p/novap2p/auth-service/internal/repository"
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

const serviceName = "auth-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("auth service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load("AUTH_SERVICE")
	if err != nil {
		return err
	}
	logging.Setup(serviceName, cfg.LogFormat)

	// The users table is migrated by user-service.
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := redisClient.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	revoked := auth.NewRevocationList(rdb)
	verifier := auth.NewVerifier(tokens, revoked)
	publisher := events.NewPublisher(rdb)

	userRepo := repository.NewUserRepository(db)
	querySvc := authqry.NewAuthQueryService(userRepo, tokens, verifier, publisher)
	commandSvc := authcmd.NewSessionCommandService(revoked, publisher)

	m := metrics.New(serviceName)
	authHandler := handler.NewAuthHandler(querySvc, commandSvc, events.NewFeed(rdb), m)

	router := server.NewRouter(m, cfg.IsProduction())
	authHandler.Register(router.Group("/v1/auth"), middleware.AuthMiddleware(verifier))

	return server.Run(ctx, cfg.Addr("8081"), router, cfg.ShutdownTimeout)
}
