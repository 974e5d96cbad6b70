// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldline-labs/relay/internal/log"
	"github.com/fieldline-labs/relay/pkg/guard"
	"github.com/fieldline-labs/relay/pkg/identity"
	"github.com/fieldline-labs/relay/pkg/llm/anthropic"
	"github.com/fieldline-labs/relay/pkg/notify"
	"github.com/fieldline-labs/relay/pkg/observability"
	"github.com/fieldline-labs/relay/pkg/presence"
	"github.com/fieldline-labs/relay/pkg/server"
	"github.com/fieldline-labs/relay/pkg/tokencache"
	"github.com/fieldline-labs/relay/pkg/turn"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent host server",
	Long:  `Starts the HTTP host: POST /api/messages receives activities, GET /api/health reports liveness. Presence keep-alive and telemetry export run in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	encoding := "console"
	if config.Logging.Format == "json" {
		encoding = "json"
	}
	logger, err := log.Configure(log.Config{Level: config.Logging.Level, Encoding: encoding})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if config.LLM.AnthropicAPIKey == "" {
		return fmt.Errorf("anthropic API key is required (set RELAY_LLM_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY)")
	}

	// Token cache feeds both the telemetry exporter and identity calls.
	tokens := tokencache.New(logger)

	// Telemetry provider. Export degrades to local logging on an
	// empty token; disabling skips export entirely.
	telemetry := observability.Disabled()
	if config.Observability.Enabled {
		var exporter observability.Exporter
		if config.Observability.Endpoint != "" {
			exporter, err = observability.NewHTTPExporter(observability.HTTPExporterConfig{
				Endpoint:      config.Observability.Endpoint,
				TokenResolver: tokens.Resolver(),
				Logger:        logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create telemetry exporter: %w", err)
			}
		} else {
			exporter = observability.NewLogExporter(logger)
		}
		telemetry, err = observability.Configure(observability.Config{
			ServiceName:   config.Observability.ServiceName,
			Namespace:     config.Observability.Namespace,
			Exporter:      exporter,
			TokenResolver: tokens.Resolver(),
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("failed to configure telemetry: %w", err)
		}
	}

	// Guard with optional sqlite persistence.
	var store *guard.Store
	if config.Guard.DBPath != "" {
		if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
			logger.Warn("failed to create data directory, guard state will not persist", zap.Error(err))
		} else if store, err = guard.NewStore(config.Guard.DBPath); err != nil {
			logger.Warn("failed to open guard store, guard state will not persist", zap.Error(err))
			store = nil
		}
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}
	machine := guard.NewMachine(guard.Config{
		AcceptPhrase:     config.Guard.AcceptPhrase,
		PreAcceptConsent: config.Guard.PreAcceptConsent,
		Store:            store,
		TenantID:         config.Guard.TenantID,
		Logger:           logger,
	})

	provider := anthropic.NewClient(anthropic.Config{
		APIKey:      config.LLM.AnthropicAPIKey,
		Model:       config.LLM.AnthropicModel,
		Endpoint:    config.LLM.AnthropicEndpoint,
		Timeout:     time.Duration(config.LLM.TimeoutSeconds) * time.Second,
		MaxTokens:   config.LLM.MaxTokens,
		Temperature: config.LLM.Temperature,
	})

	// Presence keep-alive, only when the identity directory is
	// configured.
	var scheduler *presence.Scheduler
	var bootstrap *presence.Bootstrap
	if config.Presence.Enabled && config.Identity.BaseURL != "" {
		directory, err := identity.NewClient(identity.ClientConfig{
			BaseURL: config.Identity.BaseURL,
			Timeout: time.Duration(config.Identity.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create identity client: %w", err)
		}
		scheduler, err = presence.NewScheduler(presence.Config{
			Directory:         directory,
			TickInterval:      time.Duration(config.Presence.TickSeconds) * time.Second,
			KeepAliveInterval: time.Duration(config.Presence.KeepAliveSeconds) * time.Second,
			MaxIdle:           time.Duration(config.Presence.MaxIdleSeconds) * time.Second,
			MaxInFlight:       config.Presence.MaxInFlight,
			CallTimeout:       time.Duration(config.Presence.CallTimeoutSeconds) * time.Second,
			Logger:            logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create presence scheduler: %w", err)
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start presence scheduler: %w", err)
		}

		if config.Agent.BlueprintID != "" {
			bootstrap, err = presence.NewBootstrap(presence.BootstrapConfig{
				Directory:   directory,
				Scheduler:   scheduler,
				BlueprintID: config.Agent.BlueprintID,
				Interval:    time.Duration(config.Presence.BootstrapMinutes) * time.Minute,
				PageSize:    config.Presence.BootstrapPageSize,
				Logger:      logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create presence bootstrap: %w", err)
			}
			if err := bootstrap.Start(ctx); err != nil {
				return fmt.Errorf("failed to start presence bootstrap: %w", err)
			}
		}
	}

	orchestrator, err := turn.NewOrchestrator(turn.Config{
		AgentName:    config.Agent.Name,
		SystemPrompt: config.Agent.SystemPrompt,
		Telemetry:    telemetry,
		Guard:        machine,
		Router:       notify.NewRouter(provider, logger),
		Provider:     provider,
		Presence:     scheduler,
		Tokens:       tokens,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	host, err := server.New(server.Config{
		Addr:         config.Server.Addr,
		Orchestrator: orchestrator,
		Guard:        machine,
		AuthToken:    config.Server.AuthToken,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- host.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Shutting down", zap.String("reason", "context canceled"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(config.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := host.Stop(shutdownCtx); err != nil {
		logger.Error("Host server shutdown failed", zap.Error(err))
	}
	if bootstrap != nil {
		bootstrap.Stop()
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Telemetry drain incomplete", zap.Error(err))
	}
	return nil
}
