package main

import (
	"context"
	"log"
	"os"

	"github.com/onramp-hpc/pce/internal/api"
	"github.com/onramp-hpc/pce/internal/config"
	"github.com/onramp-hpc/pce/internal/engine"
	"github.com/onramp-hpc/pce/internal/jobs"
	"github.com/onramp-hpc/pce/internal/modules"
	"github.com/onramp-hpc/pce/internal/scheduler"
	"github.com/onramp-hpc/pce/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.SlogLevel())

	logger.Info("pced: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"scheduler", cfg.SchedulerType,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	driver, err := scheduler.New(cfg.SchedulerType)
	if err != nil {
		log.Fatalf("failed to create scheduler driver: %v", err)
	}

	locker := store.NewLocker(db)
	dispatch := engine.NewDispatcher(cfg.Workers, cfg.QueueSize, logger)
	defer dispatch.Shutdown()

	modCtl := modules.NewController(locker, dispatch, cfg.ModuleRoot, cfg.AvailableRoot, nil, nil, logger)
	jobCtl := jobs.NewController(locker, driver, dispatch, cfg.RunRoot, cfg.NumTasks, cfg.NotifyEmail, nil, logger)

	pollCtx, stopPoll := context.WithCancel(context.Background())
	poller := engine.NewPoller(cfg.PollInterval, jobCtl.PollActive, logger)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Run(pollCtx)
	}()

	srv := api.NewServer(cfg.ListenAddr, db, modCtl, jobCtl, logger)
	err = srv.Run()

	// The poller submits to the dispatcher, so it must stop first.
	stopPoll()
	<-pollDone
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
}
