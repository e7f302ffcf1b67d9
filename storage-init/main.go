package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/config"
	"kanban-api/storage"
	"kanban-api/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := storage.Open(storage.Options{
		Driver:  cfg.DBDriver,
		DSN:     cfg.DBDSN,
		ShowSQL: cfg.ShowSQL,
		Logger:  log.StandardLogger(),
	})
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	created, err := users.NewDirectory(db, nil, nil).BootstrapAdmin(ctx)
	if err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}
	log.WithField("admin_created", created).Info("database ready")

	if cfg.ActivityTable != "" {
		client, err := storage.NewTableClient(cfg.StorageConnectionString, cfg.ActivityTable)
		if err != nil {
			log.Fatalf("table client: %v", err)
		}
		if err := storage.EnsureTable(ctx, client); err != nil {
			log.Fatalf("create table %s: %v", cfg.ActivityTable, err)
		}
	}
	if cfg.ActivityQueue != "" {
		client, err := storage.NewQueueClient(cfg.StorageConnectionString, cfg.ActivityQueue)
		if err != nil {
			log.Fatalf("queue client: %v", err)
		}
		if err := storage.EnsureQueue(ctx, client); err != nil {
			log.Fatalf("create queue %s: %v", cfg.ActivityQueue, err)
		}
	}

	log.Info("storage init complete")
}
