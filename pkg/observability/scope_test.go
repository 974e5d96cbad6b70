// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureExporter records everything exported, for assertions.
type captureExporter struct {
	mu      sync.Mutex
	records []Record
}

func (e *captureExporter) Export(_ context.Context, record Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, record)
	return nil
}

func (e *captureExporter) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, len(e.records))
	copy(out, e.records)
	return out
}

func setupProvider(t *testing.T) (*Provider, *captureExporter) {
	t.Helper()
	exporter := &captureExporter{}
	provider, err := Configure(Config{
		ServiceName: "relay-test",
		Namespace:   "test",
		Exporter:    exporter,
	})
	require.NoError(t, err)
	return provider, exporter
}

func drain(t *testing.T, p *Provider) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestConfigure_RequiresServiceName(t *testing.T) {
	_, err := Configure(Config{})
	require.Error(t, err)
}

func TestScopeNesting_SharesTraceAndParents(t *testing.T) {
	provider, exporter := setupProvider(t)

	corr := CorrelationContext{
		TenantID:       "tenant-1",
		AgentID:        "agent-1",
		ConversationID: "conv-1",
	}
	ctx, baggage := provider.StartBaggage(context.Background(), corr)
	ctx, invocation := provider.StartInvocation(ctx, AgentDetails{AgentID: "agent-1"}, TenantDetails{TenantID: "tenant-1"})
	_, inference := provider.StartInference(ctx, InferenceDetails{Operation: "chat", Model: "test-model"})

	assert.Equal(t, baggage.traceID, invocation.traceID)
	assert.Equal(t, baggage.traceID, inference.traceID)
	assert.Equal(t, baggage.spanID, invocation.parentID)
	assert.Equal(t, invocation.spanID, inference.parentID)

	// Correlation flows down without re-stating it at each level.
	assert.Equal(t, corr, inference.Correlation())

	inference.Dispose()
	invocation.Dispose()
	baggage.Dispose()
	drain(t, provider)

	assert.Len(t, exporter.Records(), 3)
}

func TestDispose_Idempotent(t *testing.T) {
	provider, exporter := setupProvider(t)

	_, scope := provider.StartInvocation(context.Background(), AgentDetails{AgentID: "a"}, TenantDetails{TenantID: "t"})
	scope.AddMarker("work: Starting")
	scope.Dispose()
	scope.Dispose()
	drain(t, provider)

	records := exporter.Records()
	require.Len(t, records, 1, "double dispose must export one batch, not two")
	assert.Len(t, records[0].Events, 1)
}

func TestDispose_ClosesOpenChildren(t *testing.T) {
	provider, exporter := setupProvider(t)

	ctx, invocation := provider.StartInvocation(context.Background(), AgentDetails{}, TenantDetails{})
	_, inference := provider.StartInference(ctx, InferenceDetails{Operation: "chat"})

	// The child is never disposed directly; closing the parent must
	// close it.
	invocation.Dispose()
	drain(t, provider)

	records := exporter.Records()
	require.Len(t, records, 2)

	// Disposing the child again after the parent closed it exports
	// nothing new.
	inference.Dispose()
	drain(t, provider)
	assert.Len(t, exporter.Records(), 2)
}

func TestRecordError_SetsStatus(t *testing.T) {
	provider, exporter := setupProvider(t)

	_, scope := provider.StartInference(context.Background(), InferenceDetails{Operation: "chat"})
	scope.RecordError(errors.New("provider unavailable"))
	scope.Dispose()
	drain(t, provider)

	records := exporter.Records()
	require.Len(t, records, 1)
	assert.Equal(t, StatusError, records[0].Status.Code)
	assert.Equal(t, "provider unavailable", records[0].Status.Message)
}

func TestRecordAfterDispose_Ignored(t *testing.T) {
	provider, exporter := setupProvider(t)

	_, scope := provider.StartInvocation(context.Background(), AgentDetails{}, TenantDetails{})
	scope.Dispose()
	scope.RecordOutputMessages([]string{"late"})
	scope.RecordError(errors.New("late error"))
	drain(t, provider)

	records := exporter.Records()
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Events)
	assert.Equal(t, StatusOK, records[0].Status.Code)
}

func TestWithActiveScope_RestoresPriorScopeOnPanic(t *testing.T) {
	provider, _ := setupProvider(t)

	ctx, outer := provider.StartInvocation(context.Background(), AgentDetails{}, TenantDetails{})
	_, inner := provider.StartInference(ctx, InferenceDetails{Operation: "chat"})

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		_ = WithActiveScope(ctx, inner, func(innerCtx context.Context) error {
			require.Same(t, inner, ScopeFromContext(innerCtx))
			panic("handler exploded")
		})
	}()

	// The caller's ambient scope is untouched by the panic.
	assert.Same(t, outer, ScopeFromContext(ctx))
}

func TestDisabledProvider_NoOpScopes(t *testing.T) {
	provider := Disabled()

	ctx, baggage := provider.StartBaggage(context.Background(), CorrelationContext{TenantID: "t"})
	_, invocation := provider.StartInvocation(ctx, AgentDetails{}, TenantDetails{})

	// Every call is valid on a no-op scope; nothing panics, nothing
	// is buffered.
	invocation.RecordInputMessages([]string{"hello"})
	invocation.RecordResponse("hi")
	invocation.RecordError(errors.New("ignored"))
	invocation.Dispose()
	baggage.Dispose()

	assert.False(t, provider.Enabled())
	require.NoError(t, provider.Shutdown(context.Background()))
}
