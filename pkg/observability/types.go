// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package observability provides nested correlation scopes for agent
// turns: a per-conversation baggage scope wraps a per-turn invocation
// scope, which wraps per-model-call inference scopes and per-tool
// tool-call scopes. Scopes buffer events and flush them to a
// configured exporter on dispose.
//
// Telemetry is fully optional: a disabled provider hands out no-op
// scopes, so call sites record unconditionally and never branch on
// whether telemetry is configured.
package observability

import (
	"time"
)

// Kind identifies the level of a scope in the hierarchy.
type Kind int

const (
	// KindBaggage is the per-conversation correlation scope.
	KindBaggage Kind = iota
	// KindInvocation is the per-turn scope.
	KindInvocation
	// KindInference is the per-model-call scope.
	KindInference
	// KindToolCall is the per-tool-invocation scope.
	KindToolCall
)

func (k Kind) String() string {
	switch k {
	case KindBaggage:
		return "baggage"
	case KindInvocation:
		return "invocation"
	case KindInference:
		return "inference"
	case KindToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// StatusCode represents the final status of a scope.
type StatusCode int

const (
	// StatusUnset indicates status was not explicitly set.
	StatusUnset StatusCode = iota
	// StatusOK indicates successful completion.
	StatusOK
	// StatusError indicates an error occurred.
	StatusError
)

func (s StatusCode) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the final status of a scope with optional message.
type Status struct {
	Code    StatusCode
	Message string
}

// Event is a point-in-time occurrence buffered on a scope.
type Event struct {
	Timestamp  time.Time
	Name       string
	Attributes map[string]any
}

// CorrelationContext carries the cross-cutting identifiers of one
// turn. Immutable once built; owned by the turn that created it and
// propagated to every nested scope.
type CorrelationContext struct {
	TenantID       string
	AgentID        string
	AgentName      string
	ConversationID string
	CorrelationID  string
	CallerID       string
}

// AgentDetails describes the agent being invoked.
type AgentDetails struct {
	AgentID        string
	AgentName      string
	BlueprintID    string
	ConversationID string
}

// TenantDetails describes the tenant on whose behalf a turn runs.
type TenantDetails struct {
	TenantID string
}

// InferenceDetails describes one model call.
type InferenceDetails struct {
	Operation    string // e.g. "chat"
	Model        string
	ProviderName string
}

// ToolCallDetails describes one tool invocation.
type ToolCallDetails struct {
	ToolName   string
	ToolCallID string
	Arguments  string
}

// Record is an immutable snapshot of a disposed scope, handed to the
// exporter as one batch.
type Record struct {
	ServiceName string
	Namespace   string

	Kind     Kind
	Name     string
	TraceID  string
	SpanID   string
	ParentID string

	Correlation CorrelationContext

	StartedAt time.Time
	EndedAt   time.Time
	Status    Status

	Attributes map[string]any
	Events     []Event
}
