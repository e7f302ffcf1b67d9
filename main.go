package main

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/activity"
	"kanban-api/api"
	"kanban-api/auth"
	"kanban-api/boards"
	"kanban-api/config"
	"kanban-api/storage"
	"kanban-api/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	db, err := storage.Open(storage.Options{
		Driver:  cfg.DBDriver,
		DSN:     cfg.DBDSN,
		ShowSQL: cfg.ShowSQL,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("storage: %v", err)
	}
	cancel()

	var mirrors []activity.Mirror
	if cfg.ActivityTable != "" {
		client, err := storage.NewTableClient(cfg.StorageConnectionString, cfg.ActivityTable)
		if err != nil {
			log.Fatalf("activity table: %v", err)
		}
		mirrors = append(mirrors, activity.NewTableMirror(client))
	}
	if cfg.ActivityQueue != "" {
		client, err := storage.NewQueueClient(cfg.StorageConnectionString, cfg.ActivityQueue)
		if err != nil {
			log.Fatalf("activity queue: %v", err)
		}
		mirrors = append(mirrors, activity.NewQueueMirror(client))
	}
	acts := activity.New(db, logger, mirrors...)

	authSvc := auth.NewService(db, acts, auth.Options{
		TokenTTL:         cfg.TokenTTL,
		RememberTokenTTL: cfg.RememberTokenTTL,
	})
	dir := users.NewDirectory(db, authSvc, acts)
	if _, err := dir.BootstrapAdmin(context.Background()); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	var rc *redis.Client
	if opts := cfg.RedisOptions(); opts != nil {
		rc = redis.NewClient(opts)
	} else {
		log.Info("REDIS_CONNECTION_STRING not set; board listings are not cached")
	}
	store := storage.NewCache(boards.NewStore(db, acts), rc, cfg.BoardsCacheTTL)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Decompress())
	e.Use(api.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, api.Services{
		Auth:     authSvc,
		Users:    dir,
		Boards:   store,
		Activity: acts,
		Health:   func(ctx context.Context) error { return storage.Ping(ctx, db) },
	}, logger)

	e.Logger.Fatal(e.Start(cfg.ListenAddr()))
}
