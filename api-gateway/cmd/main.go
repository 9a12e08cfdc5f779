package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/novap2p/novap2p/api-gateway/internal/gateway"
	"github.com/novap2p/novap2p/shared/auth"
	"github.com/novap2p/novap2p/shared/config"
	"github.com/novap2p/novap2p/shared/logging"
	"github.com/novap2p/novap2p/shared/metrics"
	redisClient "github.com/novap2p/novap2p/shared/redis"
	"github.com/novap2p/novap2p/shared/server"
)

const serviceName = "api-gateway"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("api gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load("API_GATEWAY")
	if err != nil {
		return err
	}
	logging.Setup(serviceName, cfg.LogFormat)

	// Redis holds the signed-out token list.
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

	router, err := gateway.NewRouter(cfg, verifier, metrics.New(serviceName))
	if err != nil {
		return err
	}
	return server.Run(ctx, cfg.Addr("8080"), router, cfg.ShutdownTimeout)
}
