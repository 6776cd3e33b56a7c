package main

import (
	"time"

	"github.com/longtails/freemasons/internal/clients/inspect"
	"github.com/longtails/freemasons/internal/clients/moralis"
	"github.com/longtails/freemasons/internal/clients/twitter"
	"github.com/longtails/freemasons/internal/config"
	"github.com/longtails/freemasons/internal/models"
	"github.com/longtails/freemasons/internal/services"
	"github.com/longtails/freemasons/internal/utils"
	"github.com/longtails/freemasons/pkg/logger"
)

// appServices holds the long-lived components the server wires together.
type appServices struct {
	runner      *services.SyncRunner
	taskQueue   services.TaskQueue
	worker      *services.Worker
	scheduler   *services.SyncScheduler
	stopCleanup chan struct{}
}

// bootstrap initializes the database, the sync pipeline and the schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	services.InitSyncLogger(db)
	stopCleanup := make(chan struct{})
	services.StartLogCleanupScheduler(db, cfg.Sync.LogRetentionDays, stopCleanup)

	tw := twitter.NewClient(&cfg.Twitter)
	projectSync := services.NewProjectSync(db, inspect.NewClient(&cfg.Inspect), tw, cfg.Sync.RosterLimit)
	memberSync := services.NewMemberSync(db, moralis.NewClient(&cfg.Moralis), tw)
	locker := services.NewSyncLocker(db, time.Duration(cfg.Sync.LockTTLMinutes)*time.Minute)
	runner := services.NewSyncRunner(db, projectSync, memberSync, locker)

	// Redis-backed when enabled and reachable, in-process otherwise
	taskQueue := services.InitTaskQueue(cfg)
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis, cfg.Sync.Concurrency)
		if worker != nil {
			worker.SetProcessor(runner.Process)
			if err := worker.Start(); err != nil {
				logger.Fatalf("Failed to start worker: %v", err)
			}
		}
	} else if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(runner.Process)
	}

	scheduler := services.NewSyncScheduler(
		services.NewProjectService(db),
		services.NewMemberService(db),
		taskQueue,
		cfg.Sync.Schedule,
	)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start sync scheduler: %v", err)
	}

	return &appServices{
		runner:      runner,
		taskQueue:   taskQueue,
		worker:      worker,
		scheduler:   scheduler,
		stopCleanup: stopCleanup,
	}
}

// shutdown stops producers before consumers so no task is enqueued into a closed queue.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	close(s.stopCleanup)
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
}
