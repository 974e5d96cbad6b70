// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldline-labs/relay/pkg/identity"
)

// Defaults for BootstrapConfig.
const (
	DefaultBootstrapInterval = 15 * time.Minute
	DefaultBootstrapPageSize = 100
)

// BootstrapConfig configures the discovery loop.
type BootstrapConfig struct {
	// Directory lists provisioned identities. Required.
	Directory identity.Directory
	// Scheduler receives the discovered targets. Required.
	Scheduler *Scheduler
	// BlueprintID scopes discovery to instances of one agent
	// blueprint. Required.
	BlueprintID string
	// Interval is how often discovery re-runs. Default 15m.
	Interval time.Duration
	// PageSize is the directory page size. Default 100.
	PageSize int
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Bootstrap periodically rediscovers provisioned agent sessions and
// registers them with the presence scheduler, so restarts pick up
// sessions established before the process came up.
type Bootstrap struct {
	cfg        BootstrapConfig
	logger     *zap.Logger
	cronEngine *cron.Cron
	started    bool
}

// NewBootstrap creates a discovery loop.
func NewBootstrap(cfg BootstrapConfig) (*Bootstrap, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg.BlueprintID == "" {
		return nil, fmt.Errorf("blueprint id is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultBootstrapInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultBootstrapPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Bootstrap{cfg: cfg, logger: cfg.Logger, cronEngine: cron.New()}, nil
}

// Start runs one discovery pass immediately, then re-runs on the
// configured interval.
func (b *Bootstrap) Start(ctx context.Context) error {
	if b.started {
		return nil
	}

	if err := b.Run(ctx); err != nil {
		b.logger.Warn("initial presence discovery failed", zap.Error(err))
	}

	_, err := b.cronEngine.AddFunc(fmt.Sprintf("@every %s", b.cfg.Interval), func() {
		if err := b.Run(context.Background()); err != nil {
			b.logger.Warn("presence discovery failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule presence discovery: %w", err)
	}
	b.cronEngine.Start()
	b.started = true
	return nil
}

// Stop cancels the discovery loop.
func (b *Bootstrap) Stop() {
	if !b.started {
		return
	}
	b.started = false
	<-b.cronEngine.Stop().Done()
}

// Run performs one discovery pass, paging through the directory and
// registering every discovered session.
func (b *Bootstrap) Run(ctx context.Context) error {
	var (
		pageToken  string
		registered int
	)
	for {
		page, err := b.cfg.Directory.ListByBlueprint(ctx, b.cfg.BlueprintID, b.cfg.PageSize, pageToken)
		if err != nil {
			return fmt.Errorf("failed to list identities: %w", err)
		}
		for _, id := range page.Items {
			b.cfg.Scheduler.Register(id.TenantID, id.UserID, id.SessionID)
			registered++
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	b.logger.Info("presence discovery complete",
		zap.String("blueprint_id", b.cfg.BlueprintID),
		zap.Int("registered", registered))
	return nil
}
