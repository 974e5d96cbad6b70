// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// TokenSource supplies the bearer credential for directory calls.
// Returning an empty string sends the request unauthenticated (local
// emulator mode).
type TokenSource func(ctx context.Context) string

// ClientConfig configures the REST directory client.
type ClientConfig struct {
	// BaseURL of the directory service (required),
	// e.g. https://directory.example.com/v1.
	BaseURL string
	// TokenSource supplies the bearer credential. Optional.
	TokenSource TokenSource
	// Timeout bounds each request. Default 15s.
	Timeout time.Duration
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Client is a REST implementation of Directory.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient creates a directory client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type listResponse struct {
	Value         []wireIdentity `json:"value"`
	NextPageToken string         `json:"nextPageToken"`
}

type wireIdentity struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	UserID      string `json:"userId"`
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
	BlueprintID string `json:"blueprintId"`
}

// ListByBlueprint pages through identities filtered by parent
// blueprint id.
func (c *Client) ListByBlueprint(ctx context.Context, blueprintID string, pageSize int, pageToken string) (*Page, error) {
	if blueprintID == "" {
		return nil, fmt.Errorf("blueprint id is required")
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	q := url.Values{}
	q.Set("filter", "blueprintId eq '"+blueprintID+"'")
	q.Set("pageSize", strconv.Itoa(pageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var resp listResponse
	if err := c.doJSON(ctx, http.MethodGet, "/identities?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("list identities failed: %w", err)
	}

	page := &Page{NextPageToken: resp.NextPageToken}
	for _, w := range resp.Value {
		page.Items = append(page.Items, AgentIdentity{
			ID:          w.ID,
			TenantID:    w.TenantID,
			UserID:      w.UserID,
			SessionID:   w.SessionID,
			DisplayName: w.DisplayName,
			BlueprintID: w.BlueprintID,
		})
	}
	return page, nil
}

type presenceBody struct {
	SessionID    string `json:"sessionId"`
	Availability string `json:"availability"`
	Activity     string `json:"activity"`
	// ExpirationDuration is ISO 8601, e.g. "PT5M".
	ExpirationDuration string `json:"expirationDuration"`
}

// SetPresence refreshes the upstream presence record for a session.
func (c *Client) SetPresence(ctx context.Context, req PresenceRequest) error {
	if req.UserID == "" || req.SessionID == "" {
		return fmt.Errorf("user id and session id are required")
	}
	body := presenceBody{
		SessionID:          req.SessionID,
		Availability:       string(req.Availability),
		Activity:           string(req.Activity),
		ExpirationDuration: isoDuration(req.ExpiresIn),
	}
	path := "/users/" + url.PathEscape(req.UserID) + "/presence/setPresence"
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("set presence failed for user %s: %w", req.UserID, err)
	}
	return nil
}

// doJSON sends one request with optional JSON body and decodes the
// JSON response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.TokenSource != nil {
		if token := c.cfg.TokenSource(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("directory returned %d: %s", resp.StatusCode, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// isoDuration renders d as an ISO 8601 duration with minute
// granularity, which is what the presence API accepts.
func isoDuration(d time.Duration) string {
	if d <= 0 {
		d = 5 * time.Minute
	}
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("PT%dM", minutes)
}

var _ Directory = (*Client)(nil)
