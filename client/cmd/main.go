package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/novap2p/novap2p/client/internal/backend"
	"github.com/novap2p/novap2p/client/internal/cli"
	"github.com/novap2p/novap2p/client/internal/config"
	"github.com/novap2p/novap2p/shared/logging"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The REPL owns stdout.
	slog.SetDefault(logging.New(cfg.LogFormat, os.Stderr).With("app", "novap2p-client"))

	client := backend.New(cfg.GatewayURL, backend.WithTimeout(cfg.RequestTimeout))
	return cli.NewApp(client, os.Stdin, os.Stdout).Run(ctx)
}
