// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package presence keeps provisioned agent sessions visible upstream.
// A cron-driven scheduler refreshes each tracked session's presence
// record before it expires, evicts sessions nothing has touched in a
// while, and bounds how many refreshes run at once.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldline-labs/relay/pkg/identity"
)

// Defaults for Config.
const (
	DefaultTickInterval      = 30 * time.Second
	DefaultKeepAliveInterval = 4 * time.Minute
	DefaultMaxIdle           = 30 * time.Minute
	DefaultMaxInFlight       = 8
	DefaultCallTimeout       = 10 * time.Second
)

// TargetKey identifies one tracked session.
type TargetKey struct {
	TenantID  string
	UserID    string
	SessionID string
}

// Target is the tracked state for one session.
type Target struct {
	Key        TargetKey
	LastSeenAt time.Time
	LastSetAt  time.Time
	ExpiresAt  time.Time
}

// Config configures the presence scheduler.
type Config struct {
	// Directory performs the upstream presence calls. Required.
	Directory identity.Directory
	// TickInterval is how often tracked targets are examined.
	// Default 30s.
	TickInterval time.Duration
	// KeepAliveInterval is the minimum gap between upstream refreshes
	// for one target. Default 4m; also the upstream TTL requested.
	KeepAliveInterval time.Duration
	// MaxIdle evicts targets not seen for this long. Default 30m.
	MaxIdle time.Duration
	// MaxInFlight caps concurrent upstream calls per tick. Default 8.
	MaxInFlight int
	// CallTimeout bounds each upstream call. Default 10s.
	CallTimeout time.Duration
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Scheduler keeps tracked sessions' presence alive. Safe for
// concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	targets map[TargetKey]*Target
	cfg     Config
	logger  *zap.Logger

	cronEngine *cron.Cron
	entryID    cron.EntryID
	started    bool

	// now is swapped in tests.
	now func() time.Time
}

// NewScheduler creates a presence scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Scheduler{
		targets:    make(map[TargetKey]*Target),
		cfg:        cfg,
		logger:     cfg.Logger,
		cronEngine: cron.New(),
		now:        time.Now,
	}, nil
}

// Start begins the periodic tick. Idempotent.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	id, err := s.cronEngine.AddFunc(fmt.Sprintf("@every %s", s.cfg.TickInterval), func() {
		s.Tick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule presence tick: %w", err)
	}
	s.entryID = id
	s.cronEngine.Start()
	s.started = true

	s.logger.Info("presence scheduler started",
		zap.Duration("tick_interval", s.cfg.TickInterval),
		zap.Duration("keep_alive_interval", s.cfg.KeepAliveInterval),
		zap.Duration("max_idle", s.cfg.MaxIdle))
	return nil
}

// Stop cancels the tick and drops all tracked targets. Waits for a
// tick already running to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cronEngine.Remove(s.entryID)
	s.targets = make(map[TargetKey]*Target)
	s.mu.Unlock()

	cronCtx := s.cronEngine.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
		s.logger.Warn("presence scheduler shutdown timeout")
	}
	s.logger.Info("presence scheduler stopped")
}

// Register starts tracking a session. A target already tracked is
// refreshed the same way Touch would.
func (s *Scheduler) Register(tenantID, userID, sessionID string) {
	s.upsert(TargetKey{TenantID: tenantID, UserID: userID, SessionID: sessionID})
}

// Touch marks a tracked session as recently seen, registering it if
// needed.
func (s *Scheduler) Touch(tenantID, userID, sessionID string) {
	s.upsert(TargetKey{TenantID: tenantID, UserID: userID, SessionID: sessionID})
}

func (s *Scheduler) upsert(key TargetKey) {
	if key.UserID == "" || key.SessionID == "" {
		return
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.targets[key]; ok {
		t.LastSeenAt = now
		return
	}
	s.targets[key] = &Target{Key: key, LastSeenAt: now}
}

// Len returns the number of tracked targets.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets)
}

// Tick examines every tracked target once: idle targets are evicted
// without an upstream call, and targets whose refresh is due get a
// bounded-concurrency SetPresence. Runs to completion before
// returning; per-target failures are logged and isolated.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*Target
	for key, t := range s.targets {
		if now.Sub(t.LastSeenAt) > s.cfg.MaxIdle {
			delete(s.targets, key)
			s.logger.Debug("evicted idle presence target",
				zap.String("user_id", key.UserID),
				zap.String("session_id", key.SessionID))
			continue
		}
		if now.Sub(t.LastSetAt) >= s.cfg.KeepAliveInterval || now.After(t.ExpiresAt) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, s.cfg.MaxInFlight)
	var wg sync.WaitGroup
	for _, t := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(t *Target) {
			defer wg.Done()
			defer func() { <-sem }()
			s.refresh(ctx, t)
		}(t)
	}
	wg.Wait()
}

func (s *Scheduler) refresh(ctx context.Context, t *Target) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	err := s.cfg.Directory.SetPresence(callCtx, identity.PresenceRequest{
		UserID:       t.Key.UserID,
		SessionID:    t.Key.SessionID,
		Availability: identity.AvailabilityAvailable,
		Activity:     identity.ActivityAvailable,
		ExpiresIn:    s.cfg.KeepAliveInterval,
	})
	if err != nil {
		s.logger.Warn("presence refresh failed",
			zap.String("user_id", t.Key.UserID),
			zap.String("session_id", t.Key.SessionID),
			zap.Error(err))
		return
	}

	now := s.now()
	s.mu.Lock()
	// The target may have been evicted mid-refresh; only update a
	// still-tracked entry.
	if tracked, ok := s.targets[t.Key]; ok {
		tracked.LastSetAt = now
		tracked.ExpiresAt = now.Add(s.cfg.KeepAliveInterval)
	}
	s.mu.Unlock()
}
