// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package turn orchestrates one inbound activity end to end: scope
// setup, presence tracking, token caching, guard gating, and dispatch
// to the model or the notification router.
//
// Ordering across turns of one conversation is the transport's
// responsibility; the orchestrator takes no per-conversation lock.
package turn

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline-labs/relay/pkg/activity"
	"github.com/fieldline-labs/relay/pkg/guard"
	"github.com/fieldline-labs/relay/pkg/llm"
	"github.com/fieldline-labs/relay/pkg/notify"
	"github.com/fieldline-labs/relay/pkg/observability"
	"github.com/fieldline-labs/relay/pkg/presence"
	"github.com/fieldline-labs/relay/pkg/response"
	"github.com/fieldline-labs/relay/pkg/tokencache"
)

// User-visible failure text emitted when the model or a handler
// fails mid-turn.
const msgTurnFailure = "Sorry, something went wrong while handling your message. Please try again."

// TokenExchanger trades the hosting platform's credentials for a
// delegated token scoped to one agent instance.
type TokenExchanger interface {
	Exchange(ctx context.Context, agentID, tenantID string) (string, error)
}

// Config wires the orchestrator's collaborators. Telemetry, Guard,
// and Provider are required; the rest degrade to no-ops when nil.
type Config struct {
	// AgentName labels telemetry for this deployment.
	AgentName string
	// SystemPrompt is prepended to every model conversation.
	SystemPrompt string
	// Telemetry emits turn scopes. Use observability.Disabled() to
	// turn exporting off rather than passing nil.
	Telemetry *observability.Provider
	// Guard gates turns on install/consent state.
	Guard *guard.Machine
	// Router handles notification activities. Optional; without it
	// notifications get the unknown-type placeholder.
	Router *notify.Router
	// Provider answers admitted chat messages.
	Provider llm.Provider
	// Presence tracks the sending session. Optional.
	Presence *presence.Scheduler
	// Tokens caches delegated tokens. Optional.
	Tokens *tokencache.Cache
	// Exchanger acquires delegated tokens. Optional; requires Tokens.
	Exchanger TokenExchanger
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Orchestrator processes inbound activities.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
}

// NewOrchestrator validates config and creates an orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Telemetry == nil {
		return nil, fmt.Errorf("telemetry provider is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("guard is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, logger: cfg.Logger}, nil
}

// ProcessTurn handles one activity. Model and handler failures are
// absorbed into a user-visible apology; only sink transport errors
// propagate to the caller.
func (o *Orchestrator) ProcessTurn(ctx context.Context, act *activity.Activity, sink response.Sink) error {
	corr := o.correlation(act)

	ctx, baggage := o.cfg.Telemetry.StartBaggage(ctx, corr)
	defer baggage.Dispose()

	ctx, invocation := o.cfg.Telemetry.StartInvocation(ctx,
		observability.AgentDetails{
			AgentID:        corr.AgentID,
			AgentName:      corr.AgentName,
			ConversationID: corr.ConversationID,
		},
		observability.TenantDetails{TenantID: corr.TenantID},
	)
	defer invocation.Dispose()

	o.trackPresence(act, corr)
	o.cacheToken(ctx, corr)

	switch act.Type {
	case activity.TypeInstallationUpdate:
		return o.handleInstallation(ctx, act, invocation, sink)
	case activity.TypeNotification:
		return o.handleNotification(ctx, act, invocation, sink)
	case activity.TypeMessage:
		return o.handleMessage(ctx, act, invocation, sink)
	default:
		o.logger.Warn("dropping activity of unknown type",
			zap.String("type", string(act.Type)),
			zap.String("conversation_id", corr.ConversationID))
		return nil
	}
}

// correlation builds the turn's immutable correlation context,
// falling back to a generated correlation id when the transport did
// not supply an activity id.
func (o *Orchestrator) correlation(act *activity.Activity) observability.CorrelationContext {
	correlationID := act.ID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return observability.CorrelationContext{
		TenantID:       act.Recipient.TenantID,
		AgentID:        act.Recipient.AgenticAppID,
		AgentName:      o.cfg.AgentName,
		ConversationID: act.Conversation.ID,
		CorrelationID:  correlationID,
		CallerID:       act.From.ID,
	}
}

// trackPresence registers the sending session. Presence faults never
// affect the turn.
func (o *Orchestrator) trackPresence(act *activity.Activity, corr observability.CorrelationContext) {
	if o.cfg.Presence == nil || act.ChannelData.SessionID == "" {
		return
	}
	o.cfg.Presence.Touch(corr.TenantID, act.From.ID, act.ChannelData.SessionID)
}

// cacheToken exchanges and caches a delegated token for this agent
// instance. Exchange failures are logged and the turn continues; the
// exporter degrades to local logging on an empty token.
func (o *Orchestrator) cacheToken(ctx context.Context, corr observability.CorrelationContext) {
	if o.cfg.Exchanger == nil || o.cfg.Tokens == nil || corr.AgentID == "" {
		return
	}
	if o.cfg.Tokens.Has(corr.AgentID, corr.TenantID) {
		return
	}
	token, err := o.cfg.Exchanger.Exchange(ctx, corr.AgentID, corr.TenantID)
	if err != nil {
		o.logger.Warn("token exchange failed",
			zap.String("agent_id", corr.AgentID),
			zap.String("tenant_id", corr.TenantID),
			zap.Error(err))
		return
	}
	o.cfg.Tokens.Set(corr.AgentID, corr.TenantID, token)
}

func (o *Orchestrator) handleInstallation(ctx context.Context, act *activity.Activity, scope *observability.Scope, sink response.Sink) error {
	var eff guard.Effect
	switch {
	case act.IsInstallAdd():
		eff = o.cfg.Guard.OnInstallation(guard.ActionAdd)
	case act.IsInstallRemove():
		eff = o.cfg.Guard.OnInstallation(guard.ActionRemove)
	default:
		o.logger.Warn("installation update with unknown action", zap.String("action", act.Action))
		return nil
	}

	scope.SetAttribute("guard.state", eff.State.String())
	if eff.Message == "" {
		return nil
	}
	scope.RecordOutputMessages([]string{eff.Message})
	return response.Emit(ctx, sink, eff.Message)
}

func (o *Orchestrator) handleNotification(ctx context.Context, act *activity.Activity, scope *observability.Scope, sink response.Sink) error {
	if dec := o.cfg.Guard.OnTurn(act.Text); !dec.Admitted {
		return o.reject(ctx, dec, scope, sink)
	}

	value, err := act.DecodeNotification()
	if err != nil {
		o.logger.Warn("failed to decode notification", zap.Error(err))
		scope.RecordError(err)
		return response.Emit(ctx, sink, msgTurnFailure)
	}

	if o.cfg.Router == nil {
		return response.Emit(ctx, sink, "Notification type not yet implemented")
	}
	result := o.cfg.Router.Route(ctx, notify.EnvelopeFromActivity(value), scope, sink)
	scope.SetAttribute("notification.result", int(result))
	return nil
}

func (o *Orchestrator) handleMessage(ctx context.Context, act *activity.Activity, scope *observability.Scope, sink response.Sink) error {
	dec := o.cfg.Guard.OnTurn(act.Text)
	if !dec.Admitted {
		return o.reject(ctx, dec, scope, sink)
	}

	_, inference := o.cfg.Telemetry.StartInference(ctx, observability.InferenceDetails{
		Operation:    "chat",
		Model:        o.cfg.Provider.Model(),
		ProviderName: o.cfg.Provider.Name(),
	})
	defer inference.Dispose()

	messages := o.buildMessages(act.Text)
	inference.RecordInputMessages([]string{act.Text})

	text, emitErr, modelErr := o.runInference(ctx, messages, act, sink)
	if modelErr != nil {
		o.logger.Error("model call failed",
			zap.String("conversation_id", act.Conversation.ID),
			zap.Error(modelErr))
		inference.RecordError(modelErr)
		scope.RecordError(modelErr)
		return response.Emit(ctx, sink, msgTurnFailure)
	}
	if emitErr != nil {
		return emitErr
	}

	inference.RecordOutputMessages([]string{text})
	scope.RecordResponse(text)
	return nil
}

// runInference calls the provider, streaming through the sink when
// both the provider and the transport support it. Returns the final
// text, any sink transport error, and any model error.
func (o *Orchestrator) runInference(ctx context.Context, messages []llm.Message, act *activity.Activity, sink response.Sink) (string, error, error) {
	streamer, ok := o.cfg.Provider.(llm.StreamingProvider)
	if !ok || !act.SupportsStreaming() || !sink.SupportsStreaming() {
		resp, err := o.cfg.Provider.Chat(ctx, messages)
		if err != nil {
			return "", nil, err
		}
		return resp.Content, response.Emit(ctx, sink, resp.Content), nil
	}

	if err := sink.StartStream(ctx); err != nil {
		return "", err, nil
	}
	var emitErr error
	resp, err := streamer.ChatStream(ctx, messages, func(chunk string) {
		if emitErr == nil {
			emitErr = sink.SendChunk(ctx, chunk)
		}
	})
	if err != nil {
		// Close the stream before the orchestrator falls back to the
		// apology message.
		if endErr := sink.EndStream(ctx); endErr != nil {
			o.logger.Warn("failed to close stream after model error", zap.Error(endErr))
		}
		return "", nil, err
	}
	if emitErr == nil {
		emitErr = sink.EndStream(ctx)
	}
	return resp.Content, emitErr, nil
}

func (o *Orchestrator) buildMessages(text string) []llm.Message {
	messages := make([]llm.Message, 0, 2)
	if o.cfg.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: o.cfg.SystemPrompt})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: text})
}

// reject emits the guard's user-visible message for a rejected or
// consent-transition turn. Info-level, never an error condition.
func (o *Orchestrator) reject(ctx context.Context, dec guard.Decision, scope *observability.Scope, sink response.Sink) error {
	if dec.Reason != "" {
		o.logger.Info("turn rejected by guard", zap.String("reason", string(dec.Reason)))
		scope.SetAttribute("guard.rejection", string(dec.Reason))
	}
	if dec.Message == "" {
		return nil
	}
	scope.RecordOutputMessages([]string{dec.Message})
	return response.Emit(ctx, sink, dec.Message)
}
