// Package main provides the game server binary that runs the shared-target
// engine with a gRPC health service.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
	"github.com/zvx-echo6/mmud-sub000/internal/gameserver"
	"github.com/zvx-echo6/mmud-sub000/internal/observability"
	"github.com/zvx-echo6/mmud-sub000/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	contentDir := flag.String("content", "", "content root; overrides server.content_dir")
	activePlayers := flag.Int("active-players", 1, "active player count used to scale raid boss HP")
	taskInterval := flag.Duration("task-interval", gameserver.DefaultTaskInterval, "maintenance task interval")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *contentDir != "" {
		cfg.Server.ContentDir = *contentDir
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("name", cfg.Server.Name),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("grpc_addr", cfg.GameServer.Addr()),
	)

	contentStart := time.Now()
	content, err := gameserver.LoadContent(cfg.Server.ContentDir)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}
	logger.Info("content loaded",
		zap.Int("templates", len(content.Templates)),
		zap.Int("floors", len(content.Floors)),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	storeStart := time.Now()
	store, err := gameserver.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
	}
	logger.Info("storage ready",
		zap.String("driver", store.Driver),
		zap.Duration("elapsed", time.Since(storeStart)),
	)

	srv, err := gameserver.New(cfg, content, store, logger, gameserver.Options{
		ActivePlayers: *activePlayers,
		TaskInterval:  *taskInterval,
	})
	if err != nil {
		_ = store.Close()
		logger.Fatal("building game server", zap.Error(err))
	}
	if err := srv.Bootstrap(ctx); err != nil {
		_ = store.Close()
		logger.Fatal("bootstrapping target pool", zap.Error(err))
	}

	lifecycle := server.NewLifecycle(logger)
	srv.Register(lifecycle)

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
