// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package guard tracks per-agent-instance installation and consent
// state and gates every inbound turn before it can reach the model.
//
// States: Uninstalled → PendingConsent → Active, with removal
// returning to Uninstalled from either installed state. The machine
// never returns an error from a transition: every path produces a
// user-visible message and an admit/reject decision the orchestrator
// uses to stop further processing.
package guard

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// State is the install/consent state of the agent instance.
type State int

const (
	// StateUninstalled means no installation event has been seen (or
	// the agent was removed).
	StateUninstalled State = iota
	// StatePendingConsent means the agent is installed but the user
	// has not accepted the usage terms.
	StatePendingConsent
	// StateActive means installed with consent accepted; turns are
	// admitted.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StatePendingConsent:
		return "pending_consent"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// InstallationAction is the direction of an installation event.
type InstallationAction int

const (
	// ActionAdd installs the agent.
	ActionAdd InstallationAction = iota
	// ActionRemove uninstalls the agent and resets consent.
	ActionRemove
)

// Reason explains a rejected turn.
type Reason string

const (
	// ReasonNotInstalled rejects turns while uninstalled.
	ReasonNotInstalled Reason = "NotInstalled"
	// ReasonConsentPending rejects turns until the accept phrase is
	// received.
	ReasonConsentPending Reason = "ConsentPending"
)

// Decision is the outcome of gating one turn.
type Decision struct {
	// Admitted reports whether the turn may proceed to the router.
	Admitted bool
	// Reason is set on rejection.
	Reason Reason
	// Message is the user-visible text to emit for this decision.
	// Empty when the turn is admitted silently; non-empty on
	// rejection and on the consent confirmation.
	Message string
}

// Effect is the outcome of an installation event: one outbound
// message, no model call.
type Effect struct {
	// Message is the user-visible text to emit.
	Message string
	// State is the machine state after the event.
	State State
}

// Messages are the user-visible texts the machine emits. Zero fields
// fall back to defaults.
type Messages struct {
	Welcome          string
	WelcomeNoConsent string
	Farewell         string
	InstallPrompt    string
	ConsentPrompt    string
	ConsentConfirmed string
}

// Default message texts.
const (
	DefaultAcceptPhrase = "I accept"

	defaultWelcome = "Thanks for installing me! Before I can help, " +
		"please reply \"%ACCEPT%\" to confirm you agree to the usage terms."
	defaultWelcomeNoConsent = "Thanks for installing me! Ask me anything to get started."
	defaultFarewell         = "I have been removed from this workspace. Goodbye."
	defaultInstallPrompt    = "I am not installed yet. Please install me before sending messages."
	defaultConsentPrompt    = "Please reply \"%ACCEPT%\" to accept the usage terms before we continue."
	defaultConsentConfirmed = "Thanks! You're all set. Ask me anything."
)

// Config configures the guard machine.
type Config struct {
	// AcceptPhrase is compared against inbound text (trimmed,
	// case-insensitive) while consent is pending. Default
	// DefaultAcceptPhrase.
	AcceptPhrase string
	// PreAcceptConsent moves Add installs directly to Active, for
	// environments whose policy pre-accepts consent.
	PreAcceptConsent bool
	// SuppressRepeatGreeting drops the welcome message on a redundant
	// Add event. The default (false) re-greets, matching the observed
	// behavior of the sample agents.
	SuppressRepeatGreeting bool
	// Messages overrides the default user-visible texts.
	Messages Messages
	// Store persists state per tenant when non-nil.
	Store *Store
	// TenantID keys persisted state. Required when Store is set.
	TenantID string
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Machine is the per-agent-instance guard. Safe for concurrent use:
// installs, removals, and turns serialize on one mutex.
type Machine struct {
	mu     sync.Mutex
	state  State
	cfg    Config
	msgs   Messages
	logger *zap.Logger
}

// NewMachine creates a guard machine in StateUninstalled, or restores
// persisted state when a store is configured.
func NewMachine(cfg Config) *Machine {
	if cfg.AcceptPhrase == "" {
		cfg.AcceptPhrase = DefaultAcceptPhrase
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &Machine{
		cfg:    cfg,
		msgs:   resolveMessages(cfg.Messages, cfg.AcceptPhrase),
		logger: cfg.Logger,
	}

	if cfg.Store != nil && cfg.TenantID != "" {
		state, ok, err := cfg.Store.Load(cfg.TenantID)
		if err != nil {
			cfg.Logger.Warn("failed to load guard state, starting uninstalled",
				zap.String("tenant_id", cfg.TenantID), zap.Error(err))
		} else if ok {
			m.state = state
		}
	}
	return m
}

func resolveMessages(msgs Messages, acceptPhrase string) Messages {
	fill := func(v, def string) string {
		if v != "" {
			return v
		}
		return strings.ReplaceAll(def, "%ACCEPT%", acceptPhrase)
	}
	return Messages{
		Welcome:          fill(msgs.Welcome, defaultWelcome),
		WelcomeNoConsent: fill(msgs.WelcomeNoConsent, defaultWelcomeNoConsent),
		Farewell:         fill(msgs.Farewell, defaultFarewell),
		InstallPrompt:    fill(msgs.InstallPrompt, defaultInstallPrompt),
		ConsentPrompt:    fill(msgs.ConsentPrompt, defaultConsentPrompt),
		ConsentConfirmed: fill(msgs.ConsentConfirmed, defaultConsentConfirmed),
	}
}

// State returns the current machine state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnInstallation applies an installation event. Idempotent: a
// redundant Add is a no-op transition that still re-emits the welcome
// text unless SuppressRepeatGreeting is set.
func (m *Machine) OnInstallation(action InstallationAction) Effect {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch action {
	case ActionAdd:
		redundant := m.state != StateUninstalled
		if m.cfg.PreAcceptConsent {
			m.setStateLocked(StateActive)
		} else if m.state != StateActive {
			m.setStateLocked(StatePendingConsent)
		}
		if redundant && m.cfg.SuppressRepeatGreeting {
			return Effect{State: m.state}
		}
		msg := m.msgs.Welcome
		if m.state == StateActive {
			msg = m.msgs.WelcomeNoConsent
		}
		return Effect{Message: msg, State: m.state}

	case ActionRemove:
		m.setStateLocked(StateUninstalled)
		return Effect{Message: m.msgs.Farewell, State: m.state}

	default:
		m.logger.Warn("unknown installation action", zap.Int("action", int(action)))
		return Effect{State: m.state}
	}
}

// OnTurn gates one inbound turn. Never errors; every rejection
// carries the message to show the user.
func (m *Machine) OnTurn(text string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateUninstalled:
		return Decision{
			Admitted: false,
			Reason:   ReasonNotInstalled,
			Message:  m.msgs.InstallPrompt,
		}

	case StatePendingConsent:
		if strings.EqualFold(strings.TrimSpace(text), m.cfg.AcceptPhrase) {
			m.setStateLocked(StateActive)
			return Decision{Admitted: false, Message: m.msgs.ConsentConfirmed}
		}
		return Decision{
			Admitted: false,
			Reason:   ReasonConsentPending,
			Message:  m.msgs.ConsentPrompt,
		}

	default:
		return Decision{Admitted: true}
	}
}

// setStateLocked transitions state and persists it. Caller holds m.mu.
func (m *Machine) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.logger.Info("guard state transition",
		zap.String("from", m.state.String()),
		zap.String("to", next.String()))
	m.state = next

	if m.cfg.Store != nil && m.cfg.TenantID != "" {
		if err := m.cfg.Store.Save(m.cfg.TenantID, next); err != nil {
			m.logger.Warn("failed to persist guard state",
				zap.String("tenant_id", m.cfg.TenantID), zap.Error(err))
		}
	}
}
