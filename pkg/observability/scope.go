// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scope is one bounded unit of telemetry correlation. A scope owns
// the lifetime of its children: disposing a parent disposes any child
// still open. Record* methods are side-effect only and never panic.
//
// A no-op scope (from a disabled provider) accepts all calls and
// exports nothing.
type Scope struct {
	provider *Provider // nil for no-op scopes

	kind     Kind
	name     string
	traceID  string
	spanID   string
	parentID string

	correlation CorrelationContext

	mu        sync.Mutex
	startedAt time.Time
	endedAt   time.Time
	status    Status
	attrs     map[string]any
	events    []Event
	children  []*Scope
	disposed  bool
}

// noop reports whether this scope belongs to a disabled provider.
func (s *Scope) noop() bool {
	return s == nil || s.provider == nil
}

// Kind returns the scope's level in the hierarchy.
func (s *Scope) Kind() Kind {
	if s == nil {
		return KindBaggage
	}
	return s.kind
}

// Correlation returns the correlation context this scope carries.
func (s *Scope) Correlation() CorrelationContext {
	if s == nil {
		return CorrelationContext{}
	}
	return s.correlation
}

// SetAttribute sets a key-value attribute on the scope.
func (s *Scope) SetAttribute(key string, value any) {
	if s.noop() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.attrs[key] = value
}

// AddMarker buffers a named event with no attributes. Handlers use it
// for per-stage progress markers ("EmailNotification: Starting").
func (s *Scope) AddMarker(name string) {
	s.AddEvent(name, nil)
}

// AddEvent buffers a timestamped event on the scope.
func (s *Scope) AddEvent(name string, attrs map[string]any) {
	if s.noop() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.events = append(s.events, Event{
		Timestamp:  time.Now(),
		Name:       name,
		Attributes: attrs,
	})
}

// RecordInputMessages buffers the inbound messages of this unit of work.
func (s *Scope) RecordInputMessages(messages []string) {
	s.recordMessages("input.messages", messages)
}

// RecordOutputMessages buffers the outbound messages of this unit of work.
func (s *Scope) RecordOutputMessages(messages []string) {
	s.recordMessages("output.messages", messages)
}

func (s *Scope) recordMessages(name string, messages []string) {
	if s.noop() || len(messages) == 0 {
		return
	}
	s.AddEvent(name, map[string]any{"messages": messages, "count": len(messages)})
}

// RecordResponse buffers the final response text.
func (s *Scope) RecordResponse(text string) {
	if s.noop() {
		return
	}
	s.SetAttribute("response.content", text)
}

// RecordError marks the scope failed and buffers the error. A nil
// error is ignored.
func (s *Scope) RecordError(err error) {
	if s.noop() || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.status = Status{Code: StatusError, Message: err.Error()}
	s.events = append(s.events, Event{
		Timestamp:  time.Now(),
		Name:       "error",
		Attributes: map[string]any{"error.message": err.Error()},
	})
}

// Dispose closes the scope and flushes buffered events to the
// exporter. Idempotent: a second call is a no-op and exports nothing.
// Open children are disposed first, so their batches flush before the
// parent's.
func (s *Scope) Dispose() {
	if s.noop() {
		return
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	children := s.children
	s.children = nil
	s.mu.Unlock()

	for _, child := range children {
		child.Dispose()
	}

	s.mu.Lock()
	s.endedAt = time.Now()
	if s.status.Code == StatusUnset {
		s.status = Status{Code: StatusOK}
	}
	record := s.snapshotLocked()
	s.mu.Unlock()

	s.provider.export(record)
}

// snapshotLocked builds the export record. Caller holds s.mu.
func (s *Scope) snapshotLocked() Record {
	attrs := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		attrs[k] = v
	}
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return Record{
		ServiceName: s.provider.cfg.ServiceName,
		Namespace:   s.provider.cfg.Namespace,
		Kind:        s.kind,
		Name:        s.name,
		TraceID:     s.traceID,
		SpanID:      s.spanID,
		ParentID:    s.parentID,
		Correlation: s.correlation,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
		Status:      s.status,
		Attributes:  attrs,
		Events:      events,
	}
}

func (s *Scope) addChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		// The parent already closed; the child lives on its own and
		// still exports when disposed. Surface the misuse in the log.
		s.provider.cfg.Logger.Warn("scope opened under a disposed parent",
			zap.String("parent", s.name), zap.String("child", child.name))
		return
	}
	s.children = append(s.children, child)
}

type scopeContextKey struct{}

// ScopeFromContext retrieves the active scope from ctx, or nil.
func ScopeFromContext(ctx context.Context) *Scope {
	if s, ok := ctx.Value(scopeContextKey{}).(*Scope); ok {
		return s
	}
	return nil
}

// ContextWithScope returns a context with the scope set as active.
// Nested Start* calls parent to the active scope.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// WithActiveScope runs fn with the scope active in the derived
// context. The caller's context is untouched, so the prior active
// scope is restored on return and on panic alike.
func WithActiveScope(ctx context.Context, s *Scope, fn func(ctx context.Context) error) error {
	return fn(ContextWithScope(ctx, s))
}
