package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"kirabridge/internal/agent"
	"kirabridge/internal/bus"
	"kirabridge/internal/channel"
	"kirabridge/internal/domain"
	"kirabridge/internal/persona"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API, desktop websocket and Slack channel",
		Long:  "Starts every enabled channel and the pipeline worker. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Personas.Watch && cfg.Personas.Dir != "" {
		watcher := persona.NewWatcher(persona.WatcherConfig{
			Catalog:  a.catalog,
			Logger:   logger,
			OnReload: a.metrics.ObservePersonaReload,
		})
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("persona watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	// Message bus between the websocket/Slack channels and the worker.
	messageBus := bus.New(bus.Config{BufferSize: cfg.Server.BusBuffer, Logger: logger})

	worker := agent.NewWorker(agent.WorkerConfig{
		Bus:         messageBus,
		Handler:     a.pipeline,
		Concurrency: cfg.Agent.Concurrency,
		Logger:      logger,
	})
	var workerWG sync.WaitGroup
	workerWG.Add(1)
	go func() {
		defer workerWG.Done()
		worker.Run(ctx)
	}()

	var channels []domain.Channel
	if cfg.Server.Enabled {
		scfg := channel.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			WSPath:          cfg.Server.WSPath,
			MaxBodyBytes:    int64(cfg.Server.MaxBodyKiB) * 1024,
			Pipeline:        a.pipeline,
			Personas:        a.catalog,
			OnPersonaReload: a.metrics.ObservePersonaReload,
			Logger:          logger,
		}
		if cfg.Metrics.Enabled {
			scfg.MetricsPath = cfg.Metrics.Path
			scfg.Metrics = a.metrics.Handler()
		}
		channels = append(channels, channel.NewServer(scfg))
	}
	if cfg.Slack.Enabled {
		if cfg.Slack.BotToken == "" || cfg.Slack.AppToken == "" {
			logger.Warn("slack enabled but botToken/appToken missing, skipping")
		} else {
			channels = append(channels, channel.NewSlack(channel.SlackConfig{
				BotToken: cfg.Slack.BotToken,
				AppToken: cfg.Slack.AppToken,
				Persona:  cfg.Slack.Persona,
				Logger:   logger,
			}))
		}
	}
	if len(channels) == 0 {
		messageBus.Close()
		return fmt.Errorf("no channel enabled: set server.enabled or slack.enabled")
	}

	var chWG sync.WaitGroup
	for _, ch := range channels {
		chWG.Add(1)
		go func(ch domain.Channel) {
			defer chWG.Done()
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	logger.Info("kirabridge started. Press Ctrl+C to stop.",
		"version", version, "sources", a.assembler.Names(), "personas", a.catalog.Len())

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		chWG.Wait()
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "err", err)
			}
		}
		workerWG.Wait()
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}
