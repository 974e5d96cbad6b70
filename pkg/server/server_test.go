// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline-labs/relay/pkg/guard"
	"github.com/fieldline-labs/relay/pkg/llm"
	"github.com/fieldline-labs/relay/pkg/observability"
	"github.com/fieldline-labs/relay/pkg/turn"
)

// staticProvider returns a fixed answer, streamed in two chunks when
// asked.
type staticProvider struct {
	content string
}

func (p *staticProvider) Chat(context.Context, []llm.Message) (*llm.Response, error) {
	return &llm.Response{Content: p.content}, nil
}

func (p *staticProvider) ChatStream(_ context.Context, _ []llm.Message, cb llm.TokenCallback) (*llm.Response, error) {
	half := len(p.content) / 2
	cb(p.content[:half])
	cb(p.content[half:])
	return &llm.Response{Content: p.content}, nil
}

func (p *staticProvider) Name() string  { return "static" }
func (p *staticProvider) Model() string { return "static-1" }

func newTestServer(t *testing.T, opts func(*Config)) *Server {
	t.Helper()

	g := guard.NewMachine(guard.Config{PreAcceptConsent: true})
	g.OnInstallation(guard.ActionAdd)

	o, err := turn.NewOrchestrator(turn.Config{
		AgentName: "relay-test",
		Telemetry: observability.Disabled(),
		Guard:     g,
		Provider:  &staticProvider{content: "hello back"},
	})
	require.NoError(t, err)

	cfg := Config{Addr: ":0", Orchestrator: o, Guard: g}
	if opts != nil {
		opts(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func postActivity(t *testing.T, handler http.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_MessageTurn(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postActivity(t, s.Handler(), map[string]any{
		"type":         "message",
		"text":         "hi",
		"conversation": map[string]any{"id": "conv-1"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(rec.Body.Bytes()), &out))
	assert.Equal(t, "message", out.Type)
	assert.Equal(t, "hello back", out.Text)
}

func TestServer_StreamedTurn(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postActivity(t, s.Handler(), map[string]any{
		"type":         "message",
		"text":         "hi",
		"conversation": map[string]any{"id": "conv-1"},
		"channelData":  map[string]any{"streamingSupported": true},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var events []outboundActivity
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var ev outboundActivity
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, "typing", events[0].Type)
	assert.Equal(t, "typing", events[1].Type)
	assert.Equal(t, "message", events[2].Type)
	assert.Equal(t, "final", events[2].StreamType)
	assert.Equal(t, "hello back", events[2].Text)
}

func TestServer_MalformedActivity(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Valid JSON without a conversation id is also rejected.
	rec = postActivity(t, s.Handler(), map[string]any{"type": "message"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetMessagesProbe(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "active", resp.GuardState)
}

func TestServer_BearerAuth(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) { cfg.AuthToken = "secret" })
	body := map[string]any{
		"type":         "message",
		"text":         "hi",
		"conversation": map[string]any{"id": "conv-1"},
	}

	rec := postActivity(t, s.Handler(), body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(data))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Addr: ":0"})
	assert.Error(t, err)
}
