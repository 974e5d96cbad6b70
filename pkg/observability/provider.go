// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenResolver resolves the bearer credential used by the exporter
// for a given agent and tenant. An empty return degrades the export
// to local logging; it never blocks or fails the turn.
type TokenResolver func(agentID, tenantID string) string

// Config holds provider configuration.
type Config struct {
	// ServiceName identifies the exporting service (required).
	ServiceName string
	// Namespace groups related services.
	Namespace string
	// Exporter receives disposed scope records. Defaults to a
	// log-only exporter when nil.
	Exporter Exporter
	// TokenResolver supplies the exporter credential. Optional.
	TokenResolver TokenResolver
	// ExportTimeout bounds each export call. Default 5s.
	ExportTimeout time.Duration
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Provider creates scopes and flushes them to the exporter. The zero
// value is not usable; construct with Configure or Disabled.
type Provider struct {
	cfg     Config
	enabled bool
	wg      sync.WaitGroup
}

// Configure builds an enabled provider.
func Configure(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = 5 * time.Second
	}
	if cfg.Exporter == nil {
		cfg.Exporter = NewLogExporter(cfg.Logger)
	}
	return &Provider{cfg: cfg, enabled: true}, nil
}

// Disabled returns a provider whose scopes are all no-ops. Callers
// hold valid handles and record freely; nothing is buffered or
// exported.
func Disabled() *Provider {
	return &Provider{}
}

// Enabled reports whether telemetry is configured.
func (p *Provider) Enabled() bool {
	return p != nil && p.enabled
}

// StartBaggage opens the per-conversation correlation scope. The
// returned context carries the scope as active, so later Start* calls
// nest under it.
func (p *Provider) StartBaggage(ctx context.Context, corr CorrelationContext) (context.Context, *Scope) {
	s := p.newScope(ctx, KindBaggage, ScopeNameBaggage, corr)
	if !s.noop() {
		s.SetAttribute("tenant.id", corr.TenantID)
		s.SetAttribute("agent.id", corr.AgentID)
		s.SetAttribute("conversation.id", corr.ConversationID)
		s.SetAttribute("correlation.id", corr.CorrelationID)
	}
	return ContextWithScope(ctx, s), s
}

// StartInvocation opens the per-turn scope under the active scope.
func (p *Provider) StartInvocation(ctx context.Context, agent AgentDetails, tenant TenantDetails) (context.Context, *Scope) {
	corr := p.inheritCorrelation(ctx)
	s := p.newScope(ctx, KindInvocation, ScopeNameInvocation, corr)
	if !s.noop() {
		s.SetAttribute("agent.id", agent.AgentID)
		s.SetAttribute("agent.name", agent.AgentName)
		s.SetAttribute("tenant.id", tenant.TenantID)
		if agent.BlueprintID != "" {
			s.SetAttribute("agent.blueprint_id", agent.BlueprintID)
		}
	}
	return ContextWithScope(ctx, s), s
}

// StartInference opens a per-model-call scope under the active scope.
func (p *Provider) StartInference(ctx context.Context, details InferenceDetails) (context.Context, *Scope) {
	s := p.newScope(ctx, KindInference, ScopeNameInference, p.inheritCorrelation(ctx))
	if !s.noop() {
		s.SetAttribute("inference.operation", details.Operation)
		s.SetAttribute("inference.model", details.Model)
		s.SetAttribute("inference.provider", details.ProviderName)
	}
	return ContextWithScope(ctx, s), s
}

// StartToolCall opens a per-tool-invocation scope under the active scope.
func (p *Provider) StartToolCall(ctx context.Context, details ToolCallDetails) (context.Context, *Scope) {
	s := p.newScope(ctx, KindToolCall, ScopeNameToolCall, p.inheritCorrelation(ctx))
	if !s.noop() {
		s.SetAttribute("tool.name", details.ToolName)
		s.SetAttribute("tool.call_id", details.ToolCallID)
		if details.Arguments != "" {
			s.SetAttribute("tool.arguments", details.Arguments)
		}
	}
	return ContextWithScope(ctx, s), s
}

// Shutdown waits for in-flight exports to finish or ctx to expire.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) inheritCorrelation(ctx context.Context) CorrelationContext {
	if parent := ScopeFromContext(ctx); parent != nil {
		return parent.Correlation()
	}
	return CorrelationContext{}
}

func (p *Provider) newScope(ctx context.Context, kind Kind, name string, corr CorrelationContext) *Scope {
	if !p.Enabled() {
		return &Scope{kind: kind, name: name}
	}
	s := &Scope{
		provider:    p,
		kind:        kind,
		name:        name,
		traceID:     uuid.NewString(),
		spanID:      uuid.NewString(),
		correlation: corr,
		startedAt:   time.Now(),
		attrs:       make(map[string]any),
	}
	if parent := ScopeFromContext(ctx); parent != nil && !parent.noop() {
		s.traceID = parent.traceID
		s.parentID = parent.spanID
		parent.addChild(s)
	}
	return s
}

// export flushes one record asynchronously. Exporter failures are
// logged and swallowed; telemetry faults never reach the turn.
func (p *Provider) export(record Record) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.cfg.Logger.Error("exporter panicked", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ExportTimeout)
		defer cancel()
		if err := p.cfg.Exporter.Export(ctx, record); err != nil {
			p.cfg.Logger.Warn("scope export failed",
				zap.String("scope", record.Name),
				zap.Error(err))
		}
	}()
}
