// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package tokencache caches delegated bearer credentials per
// (agentID, tenantID) pair for the telemetry exporter and any handler
// needing a delegated call.
//
// This is a development-grade cache: in-memory only, no TTL and no
// eviction. Entries are overwritten by later Set calls and survive
// until Delete or Clear. A production deployment should layer expiry
// metadata on top before trusting long-lived entries.
package tokencache

import (
	"github.com/fieldline-labs/relay/internal/csync"
	"go.uber.org/zap"
)

// Key builds the canonical cache key for an agent and tenant. All
// callers must build keys through this function; mixing key forms
// makes lookups silently miss.
func Key(agentID, tenantID string) string {
	if tenantID == "" {
		return agentID
	}
	return agentID + "-" + tenantID
}

// Cache is a single-writer-many-reader token store.
type Cache struct {
	tokens *csync.Map[string, string]
	logger *zap.Logger
}

// New creates an empty cache. A nil logger defaults to zap.NewNop().
func New(logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		tokens: csync.NewMap[string, string](),
		logger: logger,
	}
}

// Set stores a token for the agent/tenant pair, overwriting any
// existing entry.
func (c *Cache) Set(agentID, tenantID, token string) {
	key := Key(agentID, tenantID)
	c.tokens.Set(key, token)
	c.logger.Debug("cached token", zap.String("key", key))
}

// Get retrieves a cached token. The boolean signals a cache miss.
func (c *Cache) Get(agentID, tenantID string) (string, bool) {
	key := Key(agentID, tenantID)
	token, ok := c.tokens.Get(key)
	if !ok {
		c.logger.Debug("token cache miss", zap.String("key", key))
	}
	return token, ok
}

// Has reports whether a token is cached for the pair.
func (c *Cache) Has(agentID, tenantID string) bool {
	return c.tokens.Has(Key(agentID, tenantID))
}

// Delete removes the entry for the pair.
func (c *Cache) Delete(agentID, tenantID string) {
	c.tokens.Delete(Key(agentID, tenantID))
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.tokens.Clear()
}

// Resolver adapts the cache to the telemetry exporter's token
// resolver contract: a miss resolves to the empty string, which the
// exporter treats as "degrade to local logging".
func (c *Cache) Resolver() func(agentID, tenantID string) string {
	return func(agentID, tenantID string) string {
		token, _ := c.Get(agentID, tenantID)
		return token
	}
}
