// Package main provides the coordinator binary: the HTTP/WebSocket server
// that hosts game sessions, match history, and identity.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/avatar"
	"github.com/munchkin-companion/server/internal/config"
	"github.com/munchkin-companion/server/internal/game/history"
	"github.com/munchkin-companion/server/internal/game/session"
	"github.com/munchkin-companion/server/internal/gameserver"
	"github.com/munchkin-companion/server/internal/observability"
	"github.com/munchkin-companion/server/internal/server"
	"github.com/munchkin-companion/server/internal/storage/postgres"
	"github.com/munchkin-companion/server/internal/store"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	warmAvatars := flag.Bool("warm-avatars", true, "pre-fetch player portraits on join")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting server",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.Int("default_max_level", cfg.Game.DefaultMaxLevel),
	)

	// The session store is in-process; the optional database only archives
	// the match history.
	memory := store.NewMemory()

	var archive history.Archive
	var pool *postgres.Pool
	if cfg.Database.Enabled() {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		archive = postgres.NewGameRecordRepository(pool.DB())
		logger.Info("history archive connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	} else {
		logger.Info("history archive disabled")
	}

	recorder := history.NewRecorder(memory, archive, logger)
	repo := session.NewRepository(memory, recorder, logger, cfg.Game)
	hub := gameserver.NewHub(repo, logger)

	var warmer *avatar.Warmer
	if *warmAvatars {
		warmer = avatar.NewWarmer(nil, logger)
	}

	handler := gameserver.NewHandler(repo, hub, recorder, warmer, logger)
	httpServer := gameserver.NewServer(cfg.HTTP, handler.Routes(), logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("hub", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  hub.Close,
	})
	lifecycle.Add("http", httpServer)

	logger.Info("server ready", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
