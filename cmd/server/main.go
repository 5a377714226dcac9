// escrowd - settlement engine for peer-to-peer crypto-for-cash trades
package main

import (
	"context"
	"os"

	"github.com/p2pcash/escrowd/internal/config"
	"github.com/p2pcash/escrowd/internal/logging"
	"github.com/p2pcash/escrowd/internal/server"
	"github.com/p2pcash/escrowd/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting escrowd",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"custody_url", cfg.CustodyURL,
		"confirmation_threshold", cfg.ConfirmationThreshold,
		"escrow_window", cfg.EscrowWindow,
	)

	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
		if err != nil {
			logger.Error("failed to init tracing", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
