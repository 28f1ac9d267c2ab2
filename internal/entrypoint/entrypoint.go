// Package entrypoint wires the long-running worker process: the task
// queue draining deck injections and the cron-driven revlog mirror.
package entrypoint

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ankilms/deckbridge/internal/analytics"
	"github.com/ankilms/deckbridge/internal/config"
	"github.com/ankilms/deckbridge/internal/database"
	"github.com/ankilms/deckbridge/internal/injector"
	"github.com/ankilms/deckbridge/internal/locks"
	"github.com/ankilms/deckbridge/internal/scheduler"
	"github.com/ankilms/deckbridge/internal/storage/providers/localfs"
	"github.com/ankilms/deckbridge/internal/tasks"
)

// Run starts the worker and blocks until SIGINT/SIGTERM.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting deckbridge worker %s", version)

	if _, err := os.Stat(cfg.AnkiData.Root); os.IsNotExist(err) {
		log.Fatalf("Anki data root %s does not exist", cfg.AnkiData.Root)
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	blobs, err := localfs.NewClient(cfg.Storage.BlobDir)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	inj := injector.New(injector.Config{
		DataRoot:     cfg.AnkiData.Root,
		WebMediaRoot: cfg.Media.WebRoot,
		Locks:        locks.New(),
		Store:        db,
	})

	reader := analytics.NewReader(cfg.AnkiData.Root, cfg.Analytics.BatchSize, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var taskClient *tasks.Client
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.Config{
			Workers:           cfg.Tasks.Workers,
			MaxRetries:        cfg.Tasks.MaxRetries,
			RetryDelay:        cfg.Tasks.RetryDelay,
			TaskTimeout:       cfg.Tasks.TaskTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		})
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer taskClient.Close()

		taskClient.Register(
			tasks.NewInjectDeckQueue(blobs, inj, cfg.Storage.DownloadTimeout),
			tasks.NewSyncRevlogQueue(reader),
		)
		go taskClient.Start(ctx)
	}

	if cfg.RevlogSync.Enabled {
		revlogScheduler := scheduler.NewRevlogSyncScheduler(cfg.AnkiData.Root, cfg.RevlogSync.Schedule, reader)
		if err := revlogScheduler.Start(ctx); err != nil {
			log.Fatalf("Failed to start revlog sync scheduler: %v", err)
		}
		defer revlogScheduler.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Global.ShutdownTimeoutInSeconds)*time.Second)
	defer shutdownCancel()

	if taskClient != nil {
		taskClient.Stop(shutdownCtx)
	}
	cancel()

	log.Println("Shutdown complete")
}
