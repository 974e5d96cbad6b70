// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Exporter receives the record of a disposed scope. One record is one
// batch: a scope's buffered events flush together, exactly once.
type Exporter interface {
	Export(ctx context.Context, record Record) error
}

// LogExporter writes scope records to the local log. It is the
// default exporter and the degradation target when the HTTP exporter
// cannot resolve a credential.
type LogExporter struct {
	logger *zap.Logger
}

// NewLogExporter creates a log-only exporter.
func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger}
}

// Export logs the record at debug level.
func (e *LogExporter) Export(_ context.Context, record Record) error {
	e.logger.Debug("scope exported",
		zap.String("scope", record.Name),
		zap.String("kind", record.Kind.String()),
		zap.String("trace_id", record.TraceID),
		zap.String("span_id", record.SpanID),
		zap.String("status", record.Status.Code.String()),
		zap.Duration("duration", record.EndedAt.Sub(record.StartedAt)),
		zap.Int("events", len(record.Events)))
	return nil
}

// HTTPExporterConfig configures the HTTP batch exporter.
type HTTPExporterConfig struct {
	// Endpoint receives POSTed scope records (required).
	Endpoint string
	// TokenResolver supplies the bearer credential per record. When
	// resolution yields an empty token the record degrades to local
	// logging and Export returns nil.
	TokenResolver TokenResolver
	// Timeout bounds each HTTP request. Default 10s.
	Timeout time.Duration
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// HTTPExporter posts scope records to a collection endpoint,
// authenticating with a bearer token resolved per (agentID, tenantID).
type HTTPExporter struct {
	cfg      HTTPExporterConfig
	client   *http.Client
	fallback *LogExporter
}

// NewHTTPExporter creates an HTTP exporter.
func NewHTTPExporter(cfg HTTPExporterConfig) (*HTTPExporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &HTTPExporter{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		fallback: NewLogExporter(cfg.Logger),
	}, nil
}

// Export posts the record. Missing credentials are not an error: the
// record is logged locally and the turn proceeds.
func (e *HTTPExporter) Export(ctx context.Context, record Record) error {
	var token string
	if e.cfg.TokenResolver != nil {
		token = e.cfg.TokenResolver(record.Correlation.AgentID, record.Correlation.TenantID)
	}
	if token == "" {
		e.cfg.Logger.Debug("no exporter credential, falling back to local logging",
			zap.String("agent_id", record.Correlation.AgentID),
			zap.String("tenant_id", record.Correlation.TenantID))
		return e.fallback.Export(ctx, record)
	}

	body, err := json.Marshal(exportPayload(record))
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("export endpoint returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

type wireEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type wireRecord struct {
	ServiceName    string         `json:"serviceName"`
	Namespace      string         `json:"namespace,omitempty"`
	Kind           string         `json:"kind"`
	Name           string         `json:"name"`
	TraceID        string         `json:"traceId"`
	SpanID         string         `json:"spanId"`
	ParentID       string         `json:"parentId,omitempty"`
	TenantID       string         `json:"tenantId,omitempty"`
	AgentID        string         `json:"agentId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	CorrelationID  string         `json:"correlationId,omitempty"`
	CallerID       string         `json:"callerId,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	EndedAt        time.Time      `json:"endedAt"`
	Status         string         `json:"status"`
	StatusMessage  string         `json:"statusMessage,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	Events         []wireEvent    `json:"events,omitempty"`
}

func exportPayload(r Record) wireRecord {
	events := make([]wireEvent, 0, len(r.Events))
	for _, ev := range r.Events {
		events = append(events, wireEvent{Timestamp: ev.Timestamp, Name: ev.Name, Attributes: ev.Attributes})
	}
	return wireRecord{
		ServiceName:    r.ServiceName,
		Namespace:      r.Namespace,
		Kind:           r.Kind.String(),
		Name:           r.Name,
		TraceID:        r.TraceID,
		SpanID:         r.SpanID,
		ParentID:       r.ParentID,
		TenantID:       r.Correlation.TenantID,
		AgentID:        r.Correlation.AgentID,
		ConversationID: r.Correlation.ConversationID,
		CorrelationID:  r.Correlation.CorrelationID,
		CallerID:       r.Correlation.CallerID,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		Status:         r.Status.Code.String(),
		StatusMessage:  r.Status.Message,
		Attributes:     r.Attributes,
		Events:         events,
	}
}
