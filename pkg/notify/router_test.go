// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline-labs/relay/pkg/activity"
	"github.com/fieldline-labs/relay/pkg/llm"
	"github.com/fieldline-labs/relay/pkg/observability"
	"github.com/fieldline-labs/relay/pkg/response"
)

// scriptedProvider returns canned responses in order and records each
// request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	panicMsg  string
	calls     [][]llm.Message
}

func (p *scriptedProvider) Chat(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, messages)
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.err != nil {
		return nil, p.err
	}
	content := "ok"
	if idx := len(p.calls) - 1; idx < len(p.responses) {
		content = p.responses[idx]
	}
	return &llm.Response{Content: content}, nil
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func routeScope(t *testing.T) (*observability.Scope, func() []observability.Record) {
	t.Helper()
	exp := &captureExporter{}
	p, err := observability.Configure(observability.Config{
		ServiceName: "notify-test",
		Exporter:    exp,
	})
	require.NoError(t, err)
	_, scope := p.StartInvocation(context.Background(),
		observability.AgentDetails{AgentID: "agent-1"},
		observability.TenantDetails{TenantID: "t1"})
	return scope, func() []observability.Record {
		scope.Dispose()
		require.NoError(t, p.Shutdown(context.Background()))
		return exp.records()
	}
}

func eventNames(rec observability.Record) []string {
	names := make([]string, 0, len(rec.Events))
	for _, ev := range rec.Events {
		names = append(names, ev.Name)
	}
	return names
}

// captureExporter collects exported records.
type captureExporter struct {
	mu   sync.Mutex
	recs []observability.Record
}

func (c *captureExporter) Export(_ context.Context, rec observability.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureExporter) records() []observability.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]observability.Record(nil), c.recs...)
}

func TestRouter_EmailStagedCalls(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"the email body", "You got mail from Dana."}}
	router := NewRouter(provider, nil)
	sink := response.NewBuffer(false)
	scope, drain := routeScope(t)

	env := Envelope{Tag: TagEmailReference, Email: &EmailReference{
		MessageID: "m1", ConversationID: "c1", Sender: "Dana", Subject: "Q3 plan",
	}}
	result := router.Route(context.Background(), env, scope, sink)

	assert.Equal(t, ResultHandled, result)
	require.Equal(t, 2, provider.callCount())
	// The generation call embeds the retrieved content.
	assert.Contains(t, provider.calls[1][1].Content, "the email body")
	assert.Equal(t, []string{"You got mail from Dana."}, sink.Messages())

	recs := drain()
	require.Len(t, recs, 1)
	assert.Contains(t, eventNames(recs[0]), "EmailNotification: Starting")
	assert.Contains(t, eventNames(recs[0]), "EmailNotification: Completed")
}

func TestRouter_MissingEmailPayload(t *testing.T) {
	provider := &scriptedProvider{}
	router := NewRouter(provider, nil)
	sink := response.NewBuffer(false)
	scope, drain := routeScope(t)

	result := router.Route(context.Background(), Envelope{Tag: TagEmailReference}, scope, sink)

	assert.Equal(t, ResultHandled, result)
	assert.Zero(t, provider.callCount())
	assert.Equal(t, []string{"I could not find the email notification details."}, sink.Messages())
	drain()
}

func TestRouter_MissingCommentPayload(t *testing.T) {
	provider := &scriptedProvider{}
	router := NewRouter(provider, nil)
	sink := response.NewBuffer(false)
	scope, drain := routeScope(t)

	result := router.Route(context.Background(), Envelope{Tag: TagDocumentComment}, scope, sink)

	assert.Equal(t, ResultHandled, result)
	assert.Zero(t, provider.callCount())
	assert.Equal(t, []string{"I could not find the document comment details."}, sink.Messages())
	drain()
}

func TestRouter_UnknownType(t *testing.T) {
	provider := &scriptedProvider{}
	router := NewRouter(provider, nil)
	sink := response.NewBuffer(false)
	scope, drain := routeScope(t)

	result := router.Route(context.Background(), Envelope{Tag: TagUnknown, Text: "mystery"}, scope, sink)

	assert.Equal(t, ResultUnhandled, result)
	assert.Zero(t, provider.callCount())
	assert.Equal(t, []string{"Notification type not yet implemented"}, sink.Messages())
	drain()
}

func TestRouter_ProviderFailureContained(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model offline")}
	router := NewRouter(provider, nil)
	sink := response.NewBuffer(false)
	scope, drain := routeScope(t)

	env := Envelope{Tag: TagDocumentComment, Doc: &DocumentComment{DocumentID: "d1", CommentID: "c1", Author: "Kim"}}
	result := router.Route(context.Background(), env, scope, sink)

	assert.Equal(t, ResultHandled, result)
	require.Len(t, sink.Messages(), 1)
	assert.NotContains(t, sink.Messages()[0], "model offline")

	recs := drain()
	require.Len(t, recs, 1)
	assert.Equal(t, observability.StatusError, recs[0].Status.Code)
	assert.Contains(t, eventNames(recs[0]), "DocumentCommentNotification: Error")
}

func TestRouter_PanicContained(t *testing.T) {
	provider := &scriptedProvider{panicMsg: "boom"}
	router := NewRouter(provider, nil)
	sink := response.NewBuffer(false)
	scope, drain := routeScope(t)

	env := Envelope{Tag: TagGeneric, Text: "ping"}
	var result Result
	require.NotPanics(t, func() {
		result = router.Route(context.Background(), env, scope, sink)
	})

	assert.Equal(t, ResultHandled, result)
	require.Len(t, sink.Messages(), 1)

	recs := drain()
	require.Len(t, recs, 1)
	assert.Equal(t, observability.StatusError, recs[0].Status.Code)
}

func TestEnvelopeFromActivity(t *testing.T) {
	env := EnvelopeFromActivity(&activity.NotificationValue{
		NotificationType: activity.NotificationTypeEmail,
		Email:            &activity.EmailPayload{MessageID: "m1", Sender: "Dana"},
	})
	assert.Equal(t, TagEmailReference, env.Tag)
	require.NotNil(t, env.Email)
	assert.Equal(t, "Dana", env.Email.Sender)

	env = EnvelopeFromActivity(&activity.NotificationValue{
		NotificationType: activity.NotificationTypeComment,
	})
	assert.Equal(t, TagDocumentComment, env.Tag)
	assert.Nil(t, env.Doc)

	env = EnvelopeFromActivity(&activity.NotificationValue{Text: "plain"})
	assert.Equal(t, TagGeneric, env.Tag)
	assert.Equal(t, "plain", env.Text)

	env = EnvelopeFromActivity(&activity.NotificationValue{NotificationType: "calendarPing", Text: "x"})
	assert.Equal(t, TagUnknown, env.Tag)

	env = EnvelopeFromActivity(nil)
	assert.Equal(t, TagGeneric, env.Tag)
}
