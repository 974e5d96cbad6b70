// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package guard

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Load("tenant-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save("tenant-a", StatePendingConsent))
	state, ok, err := store.Load("tenant-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatePendingConsent, state)

	// Upsert overwrites.
	require.NoError(t, store.Save("tenant-a", StateActive))
	state, _, err = store.Load("tenant-a")
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)

	require.NoError(t, store.Save("tenant-a", StateUninstalled))
	state, ok, err = store.Load("tenant-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateUninstalled, state)
}

func TestStore_TenantsIsolated(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("tenant-a", StateActive))
	require.NoError(t, store.Save("tenant-b", StatePendingConsent))

	a, _, err := store.Load("tenant-a")
	require.NoError(t, err)
	b, _, err := store.Load("tenant-b")
	require.NoError(t, err)

	assert.Equal(t, StateActive, a)
	assert.Equal(t, StatePendingConsent, b)
}

func TestMachine_RestoresFromStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "guard.db")
	store, err := NewStore(dbPath)
	require.NoError(t, err)

	m := NewMachine(Config{Store: store, TenantID: "tenant-a"})
	m.OnInstallation(ActionAdd)
	m.OnTurn("I accept")
	require.Equal(t, StateActive, m.State())
	require.NoError(t, store.Close())

	// A fresh machine over the same database picks up consent.
	store2, err := NewStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	restored := NewMachine(Config{Store: store2, TenantID: "tenant-a"})
	assert.Equal(t, StateActive, restored.State())
	assert.True(t, restored.OnTurn("hello").Admitted)
}
