// Package app wires the gateway: config, stores, run service and routes.
package app

import (
	"context"
	"fmt"
	"log"

	"mark/internal/gateway/config"
	"mark/internal/gateway/handler"
	"mark/internal/gateway/hub"
	"mark/internal/gateway/server"
	"mark/internal/gateway/service"
	"mark/internal/report"
	"mark/internal/safeio"
)

type App struct {
	server *server.Server
	store  *report.Store
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ioFS, err := safeio.NewSafeFS(cfg.IODir)
	if err != nil {
		return nil, fmt.Errorf("io dir: %w", err)
	}
	repoFS, err := safeio.NewSafeFS(cfg.ReposDir)
	if err != nil {
		return nil, fmt.Errorf("repos dir: %w", err)
	}

	store := report.NewStoreFromEnv(cfg.StorePath)

	var archive *report.S3Archive
	if cfg.Archive.Enabled {
		archive, err = report.NewS3Archive(report.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			log.Printf("report archive disabled: %v", err)
			archive = nil
		}
	}

	events := hub.New()
	runner, err := service.NewRunner(ioFS, repoFS, ".", store, events, archive, cfg.Concurrency)
	if err != nil {
		return nil, err
	}

	runHandler := handler.NewRunHandler(runner)
	progressHandler := handler.NewProgressHandler(events)

	mux := server.NewMux(runHandler, progressHandler)
	srv := server.New(cfg.Port, mux)

	return &App{server: srv, store: store}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
