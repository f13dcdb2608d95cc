// Package app is the composition root: it wires stores, collaborators,
// engine components, background jobs and the HTTP surface together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"github.com/wechange-eg/cosinnus-notifications/internal/alerts"
	"github.com/wechange-eg/cosinnus-notifications/internal/api/handlers"
	"github.com/wechange-eg/cosinnus-notifications/internal/config"
	"github.com/wechange-eg/cosinnus-notifications/internal/digest"
	"github.com/wechange-eg/cosinnus-notifications/internal/dispatch"
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/infrastructure"
	"github.com/wechange-eg/cosinnus-notifications/internal/mail"
	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/worker"
	"github.com/wechange-eg/cosinnus-notifications/internal/preferences"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// Application holds composed application dependencies.
type Application struct {
	Config     *config.Config
	Router     *gin.Engine
	DB         *infrastructure.DatabaseClients
	Pools      *worker.Pools
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Generator  *digest.Generator
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	followedDefault, err := domain.ParseFrequency(cfg.Notifications.FollowedObjectDefault)
	if err != nil {
		return nil, fmt.Errorf("followed object default: %w", err)
	}
	reg, err := BuildRegistry(followedDefault)
	if err != nil {
		return nil, fmt.Errorf("build notification registry: %w", err)
	}

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	// Stores and platform collaborators, all on the shared pool.
	prefStore := preferences.NewPGStore(db.Pool)
	alertStore := alerts.NewPGStore(db.Pool)
	eventStore := infrastructure.NewPGEventStore(db.Pool)
	runStore := digest.NewPGRunStateStore(db.Pool)
	directory := infrastructure.NewPGDirectory(db.Pool)
	objects := infrastructure.NewPGObjectResolver(db.Pool)
	access := infrastructure.NewPGAccessPolicy(db.Pool)

	var sender mail.Sender = mail.LogSender{}
	if cfg.Mail.Host != "" {
		sender = mail.NewSMTPSender(cfg.Mail)
	}
	renderer := mail.PlainRenderer{}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		SessionsPoolSize: cfg.Worker.SessionsPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	resolver := preferences.NewResolver(reg, prefStore, access, directory)
	alertEngine := alerts.NewEngine(reg, alertStore,
		cfg.Notifications.MultiUserWindow, cfg.Notifications.BundleWindow)
	dispatcher := dispatch.NewDispatcher(reg, resolver, alertEngine,
		eventStore, directory, sender, renderer, pools)
	generator := digest.NewGenerator(reg, prefStore, eventStore,
		directory, directory, objects, access, sender, renderer, runStore)

	workers := river.NewWorkers()
	river.AddWorker(workers, digest.NewDigestWorker(generator))
	river.AddWorker(workers, digest.NewCleanupWorker(eventStore, 0))
	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init river: %w", err)
	}
	registerPeriodicJobs(db, cfg.Notifications.Portals)

	server := handlers.NewServer(handlers.ServerDeps{
		Registry: reg,
		Alerts:   alertStore,
		Prefs:    prefStore,
		Groups:   directory,
		Pool:     db.Pool,
	})

	return &Application{
		Config:     cfg,
		Router:     newRouter(cfg, server),
		DB:         db,
		Pools:      pools,
		Registry:   reg,
		Dispatcher: dispatcher,
		Generator:  generator,
	}, nil
}

// registerPeriodicJobs schedules digest runs per portal plus the event
// retention cleanup. The jobs' unique options make overlapping schedules
// collapse to one queued run.
func registerPeriodicJobs(db *infrastructure.DatabaseClients, portals []string) {
	if db.RiverClient == nil {
		return
	}
	periodic := db.RiverClient.PeriodicJobs()

	for _, portalID := range portals {
		for _, freq := range []domain.Frequency{domain.FreqDaily, domain.FreqWeekly} {
			periodic.Add(river.NewPeriodicJob(
				river.PeriodicInterval(freq.Period()),
				func() (river.JobArgs, *river.InsertOpts) {
					return digest.DigestArgs{PortalID: portalID, Frequency: freq.String()}, nil
				},
				nil,
			))
		}
	}

	// Cleanup runs daily and once on startup to bound event growth.
	periodic.Add(river.NewPeriodicJob(
		river.PeriodicInterval(24*time.Hour),
		func() (river.JobArgs, *river.InsertOpts) {
			return digest.CleanupArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	))
}
