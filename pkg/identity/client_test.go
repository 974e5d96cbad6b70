// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListByBlueprint_Paging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identities", r.URL.Path)
		assert.Equal(t, "blueprintId eq 'bp-1'", r.URL.Query().Get("filter"))
		assert.Equal(t, "Bearer dir-token", r.Header.Get("Authorization"))

		resp := listResponse{NextPageToken: ""}
		if r.URL.Query().Get("pageToken") == "" {
			resp = listResponse{
				Value: []wireIdentity{
					{ID: "id-1", TenantID: "t1", UserID: "u1", SessionID: "s1", BlueprintID: "bp-1"},
				},
				NextPageToken: "page-2",
			}
		} else {
			assert.Equal(t, "page-2", r.URL.Query().Get("pageToken"))
			resp = listResponse{
				Value: []wireIdentity{
					{ID: "id-2", TenantID: "t1", UserID: "u2", SessionID: "s2", BlueprintID: "bp-1"},
				},
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:     srv.URL,
		TokenSource: func(ctx context.Context) string { return "dir-token" },
	})
	require.NoError(t, err)

	page, err := client.ListByBlueprint(context.Background(), "bp-1", 1, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u1", page.Items[0].UserID)
	require.Equal(t, "page-2", page.NextPageToken)

	page, err = client.ListByBlueprint(context.Background(), "bp-1", 1, page.NextPageToken)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u2", page.Items[0].UserID)
	assert.Empty(t, page.NextPageToken)
}

func TestSetPresence_Body(t *testing.T) {
	var got presenceBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/u1/presence/setPresence", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	err = client.SetPresence(context.Background(), PresenceRequest{
		UserID:       "u1",
		SessionID:    "s1",
		Availability: AvailabilityAvailable,
		Activity:     ActivityAvailable,
		ExpiresIn:    4 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "Available", got.Availability)
	assert.Equal(t, "PT4M", got.ExpirationDuration)
}

func TestSetPresence_ErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	err = client.SetPresence(context.Background(), PresenceRequest{UserID: "u1", SessionID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestIsoDuration(t *testing.T) {
	assert.Equal(t, "PT4M", isoDuration(4*time.Minute))
	assert.Equal(t, "PT1M", isoDuration(10*time.Second))
	assert.Equal(t, "PT5M", isoDuration(0))
}
