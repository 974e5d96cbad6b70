// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package server exposes the turn-processing runtime over HTTP:
// POST /api/messages receives activities, GET /api/health reports
// liveness and guard state.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline-labs/relay/internal/version"
	"github.com/fieldline-labs/relay/pkg/activity"
	"github.com/fieldline-labs/relay/pkg/guard"
	"github.com/fieldline-labs/relay/pkg/turn"
)

// Config configures the host server.
type Config struct {
	// Addr is the listen address, e.g. ":3978".
	Addr string
	// Orchestrator processes inbound activities. Required.
	Orchestrator *turn.Orchestrator
	// Guard reports install/consent state for health checks. Optional.
	Guard *guard.Machine
	// AuthToken, when set, requires a matching bearer token on
	// /api/messages.
	AuthToken string
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Server is the HTTP host for the agent runtime.
type Server struct {
	cfg        Config
	logger     *zap.Logger
	httpServer *http.Server
	startedAt  time.Time
}

// New creates a host server.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // streamed turn responses
			IdleTimeout:  120 * time.Second,
		},
	}
	s.httpServer.Handler = s.Handler()
	return s, nil
}

// Handler builds the route mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/health", s.handleHealth)
	return mux
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.logger.Info("Starting host server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("host server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping host server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// Channel connectivity probe.
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	act, err := activity.Decode(r.Body)
	if err != nil {
		s.logger.Warn("rejecting malformed activity", zap.Error(err))
		http.Error(w, fmt.Sprintf("Invalid activity: %v", err), http.StatusBadRequest)
		return
	}

	sink := newHTTPSink(w, act.SupportsStreaming())
	if err := s.cfg.Orchestrator.ProcessTurn(r.Context(), act, sink); err != nil {
		s.logger.Error("turn processing failed",
			zap.String("conversation_id", act.Conversation.ID),
			zap.Error(err))
		if !sink.wroteHeader() {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	sink.finish()
}

// healthResponse is the /api/health body.
type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	GuardState string `json:"guardState,omitempty"`
	UptimeSecs int64  `json:"uptimeSeconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status:  "healthy",
		Version: version.Get(),
	}
	if !s.startedAt.IsZero() {
		resp.UptimeSecs = int64(time.Since(s.startedAt).Seconds())
	}
	if s.cfg.Guard != nil {
		resp.GuardState = s.cfg.Guard.State().String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(s.cfg.AuthToken)) == 1
}
