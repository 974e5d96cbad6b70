// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package guard

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists installation and consent state per tenant to SQLite.
// Uses WAL mode for concurrent read/write access.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a guard store with SQLite backend. The dbPath
// should point to $RELAY_DATA_DIR/guard.db.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS instance_state (
		tenant_id TEXT PRIMARY KEY,
		installed INTEGER NOT NULL DEFAULT 0,
		consent_accepted INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load retrieves the persisted state for a tenant. The second return
// value is false when the tenant has no persisted row.
func (s *Store) Load(tenantID string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var installed, consented int
	err := s.db.QueryRow(
		"SELECT installed, consent_accepted FROM instance_state WHERE tenant_id = ?",
		tenantID,
	).Scan(&installed, &consented)

	if err == sql.ErrNoRows {
		return StateUninstalled, false, nil
	}
	if err != nil {
		return StateUninstalled, false, fmt.Errorf("failed to query instance state: %w", err)
	}

	switch {
	case installed == 0:
		return StateUninstalled, true, nil
	case consented == 0:
		return StatePendingConsent, true, nil
	default:
		return StateActive, true, nil
	}
}

// Save upserts the state for a tenant.
func (s *Store) Save(tenantID string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	installed := 0
	consented := 0
	switch state {
	case StatePendingConsent:
		installed = 1
	case StateActive:
		installed = 1
		consented = 1
	}

	query := `
		INSERT INTO instance_state (tenant_id, installed, consent_accepted, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			installed = excluded.installed,
			consent_accepted = excluded.consent_accepted,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.Exec(query, tenantID, installed, consented, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save instance state: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
